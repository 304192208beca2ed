package interferogram

import (
	"math"

	"github.com/pkg/errors"

	"github.com/askiada/go-insar/pkg/raster"
)

// DefaultWindow is the side of the square coherence estimation window.
const DefaultWindow = 5

const coherenceEpsilon = 1e-10

// Coherence estimates |<ifg>| / sqrt(<|ref|²> <|sec|²>) over a window x window neighbourhood,
// where <.> is the window mean. Results are clipped to [0, 1]; pixels with no signal are 0.
func Coherence(ifg *raster.Raster[complex64], refPower, secPower *raster.Raster[float32], window int) (*raster.Raster[float32], error) {
	if !raster.SameShape(ifg, refPower) || !raster.SameShape(ifg, secPower) {
		return nil, errors.Wrap(errShape, "coherence inputs")
	}

	width, height := ifg.Width(), ifg.Height()
	n := ifg.Len()

	re := make([]float64, n)
	im := make([]float64, n)
	for i, z := range ifg.Data() {
		re[i] = float64(real(z))
		im[i] = float64(imag(z))
	}

	p1 := toFloat64(refPower.Data())
	p2 := toFloat64(secPower.Data())

	var err error
	for _, buf := range []*[]float64{&re, &im, &p1, &p2} {
		*buf, err = boxMean(*buf, width, height, window)
		if err != nil {
			return nil, errors.Wrap(err, "unable to average coherence window")
		}
	}

	out := make([]float32, n)
	for i := range out {
		num := math.Hypot(re[i], im[i])
		den := math.Sqrt(math.Max(p1[i], 0))*math.Sqrt(math.Max(p2[i], 0)) + coherenceEpsilon
		out[i] = float32(clip01(num / den))
	}

	return raster.WithData(ifg, out)
}

// CoherenceOf computes the coherence of a coregistered pair.
func CoherenceOf(pair *Pair, window int) (*raster.Raster[float32], error) {
	return Coherence(pair.Interferogram(), Intensity(pair.Reference), Intensity(pair.Secondary), window)
}

func clip01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func toFloat64(src []float32) []float64 {
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = float64(v)
	}

	return out
}
