// Package unwrap removes 2π ambiguities from wrapped interferometric phase.
package unwrap

import (
	"math"

	"github.com/pkg/errors"

	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/raster"
)

// DefaultThreshold is the coherence under which phase is considered unreliable.
const DefaultThreshold = 0.3

// Unwrapper turns wrapped phase into a continuous surface. Implementations must be deterministic
// and must leave pixels whose coherence is below their threshold undefined (NaN).
type Unwrapper interface {
	Unwrap(phase, coherence *raster.Raster[float32]) (*raster.Raster[float32], error)
}

// PathIntegrator integrates wrapped phase gradients along a fixed path: down the first column,
// then along every row. It is not a minimum-cost solver but it is exact on any input whose true
// gradients stay within (-π, π].
type PathIntegrator struct {
	// Threshold is the coherence under which the output pixel is NaN.
	Threshold float64
}

var _ Unwrapper = (*PathIntegrator)(nil)

// NewPathIntegrator returns a PathIntegrator masking below threshold.
func NewPathIntegrator(threshold float64) (*PathIntegrator, error) {
	if threshold < 0 || threshold > 1 || math.IsNaN(threshold) {
		return nil, insarerr.Configf("coherence threshold must be in [0, 1], got %g", threshold)
	}

	return &PathIntegrator{Threshold: threshold}, nil
}

// Unwrap integrates phase and masks it with coherence. A nil coherence disables masking.
func (p *PathIntegrator) Unwrap(phase, coherence *raster.Raster[float32]) (*raster.Raster[float32], error) {
	if coherence != nil && !raster.SameShape(phase, coherence) {
		return nil, errors.Wrapf(insarerr.ErrConfig, "phase is %dx%d but coherence is %dx%d",
			phase.Width(), phase.Height(), coherence.Width(), coherence.Height())
	}

	out, err := raster.WithData(phase, integrate(phase.Data(), phase.Width(), phase.Height()))
	if err != nil {
		return nil, err
	}

	return p.Mask(out, coherence)
}

// Masker sets to NaN the pixels of an unwrapped surface whose coherence is unreliable.
type Masker interface {
	Mask(unwrapped, coherence *raster.Raster[float32]) (*raster.Raster[float32], error)
}

var _ Masker = (*PathIntegrator)(nil)

// Mask returns unwrapped with the pixels below the threshold set to NaN. A nil coherence returns
// unwrapped unchanged.
func (p *PathIntegrator) Mask(unwrapped, coherence *raster.Raster[float32]) (*raster.Raster[float32], error) {
	if coherence == nil {
		return unwrapped, nil
	}

	if !raster.SameShape(unwrapped, coherence) {
		return nil, errors.Wrap(insarerr.ErrConfig, "unwrapped phase and coherence shapes differ")
	}

	out := unwrapped.Samples()
	for i, c := range coherence.Data() {
		if math.IsNaN(float64(c)) || float64(c) < p.Threshold {
			out[i] = float32(math.NaN())
		}
	}

	return raster.WithData(unwrapped, out)
}

// wrappedDiff returns b-a re-wrapped into (-π, π].
func wrappedDiff(a, b float64) float64 {
	d := b - a

	return math.Atan2(math.Sin(d), math.Cos(d))
}

// integrate runs down the first column then along each row from its first pixel. An undefined
// pixel takes the phase of its predecessor on the path, so the gradient across it is carried over,
// and stays undefined in the output.
//
// The surface is anchored on the wrapped value of the first pixel rather than on zero; the two
// differ by a constant.
func integrate(src []float32, width, height int) []float32 {
	out := make([]float32, len(src))
	if len(src) == 0 {
		return out
	}

	filled := make([]float64, len(src))
	acc := make([]float64, len(src))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x

			prev := -1
			switch {
			case x > 0:
				prev = i - 1
			case y > 0:
				prev = i - width
			}

			v := float64(src[i])
			defined := !math.IsNaN(v) && !math.IsInf(v, 0)

			if prev < 0 {
				if !defined {
					v = 0
				}
				filled[i], acc[i] = v, v
				continue
			}

			if !defined {
				v = filled[prev]
			}
			filled[i] = v
			acc[i] = acc[prev] + wrappedDiff(filled[prev], v)
		}
	}

	for i, v := range acc {
		if math.IsNaN(float64(src[i])) {
			out[i] = float32(math.NaN())
			continue
		}
		out[i] = float32(v)
	}

	return out
}
