package displacement

import (
	"math"

	"github.com/askiada/go-insar/internal/parallel"
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/raster"
)

// halfAmplitudeRatio relates a Gaussian sigma to the wavelength its response halves at:
// sigma = wavelength / (2π / sqrt(2 ln 2)).
var halfAmplitudeRatio = 2 * math.Pi / math.Sqrt(2*math.Ln2)

// Detrend subtracts a low-pass version of phase, keeping features shorter than wavelength
// (meters). The low-pass is a Gaussian whose response is one half at wavelength, with pixel size
// spacing (meters). Undefined pixels are ignored by the filter and stay undefined. A zero
// wavelength returns phase unchanged.
func Detrend(phase *raster.Raster[float32], wavelength, spacing float64) (*raster.Raster[float32], error) {
	if wavelength == 0 {
		return phase, nil
	}

	if wavelength < 0 || math.IsNaN(wavelength) {
		return nil, insarerr.Configf("detrend wavelength must not be negative, got %g", wavelength)
	}

	if spacing <= 0 || math.IsNaN(spacing) {
		return nil, insarerr.Configf("pixel spacing must be positive, got %g", spacing)
	}

	sigma := wavelength / halfAmplitudeRatio / spacing
	trend, err := Smooth(phase, sigma)
	if err != nil {
		return nil, err
	}

	out, err := raster.Zip(phase, trend, func(p, t float32) float32 {
		return p - t
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Smooth returns the normalised Gaussian convolution of the defined pixels of r with standard
// deviation sigma (pixels). The kernel is truncated at four sigma, and to the raster size.
func Smooth(r *raster.Raster[float32], sigma float64) (*raster.Raster[float32], error) {
	if sigma <= 0 || math.IsNaN(sigma) {
		return nil, insarerr.Configf("gaussian sigma must be positive, got %g", sigma)
	}

	width, height := r.Width(), r.Height()
	radius := min(int(math.Ceil(4*sigma)), max(width, height))
	kernel := gaussian(sigma, radius)

	val := make([]float64, r.Len())
	weight := make([]float64, r.Len())
	for i, v := range r.Data() {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		val[i] = f
		weight[i] = 1
	}

	for _, buf := range [][]float64{val, weight} {
		if err := convolveRows(buf, width, height, kernel); err != nil {
			return nil, err
		}
		if err := convolveCols(buf, width, height, kernel); err != nil {
			return nil, err
		}
	}

	out := make([]float32, r.Len())
	for i := range out {
		if weight[i] < 1e-12 {
			out[i] = float32(math.NaN())
			continue
		}
		out[i] = float32(val[i] / weight[i])
	}

	return raster.WithData(r, out)
}

func gaussian(sigma float64, radius int) []float64 {
	k := make([]float64, 2*radius+1)

	var sum float64
	for i := range k {
		d := float64(i - radius)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}

	for i := range k {
		k[i] /= sum
	}

	return k
}

// convolveRows filters every row of buf in place.
func convolveRows(buf []float64, width, height int, kernel []float64) error {
	radius := len(kernel) / 2

	return parallel.Rows(height, func(start, end int) error {
		line := make([]float64, width)
		for y := start; y < end; y++ {
			row := buf[y*width : (y+1)*width]
			for x := 0; x < width; x++ {
				var s float64
				for k, w := range kernel {
					s += w * row[raster.Reflect(x+k-radius, width)]
				}
				line[x] = s
			}
			copy(row, line)
		}

		return nil
	})
}

// convolveCols filters every column of buf in place.
func convolveCols(buf []float64, width, height int, kernel []float64) error {
	radius := len(kernel) / 2

	return parallel.Rows(width, func(start, end int) error {
		line := make([]float64, height)
		for x := start; x < end; x++ {
			for y := 0; y < height; y++ {
				var s float64
				for k, w := range kernel {
					s += w * buf[raster.Reflect(y+k-radius, height)*width+x]
				}
				line[y] = s
			}
			for y := 0; y < height; y++ {
				buf[y*width+x] = line[y]
			}
		}

		return nil
	})
}
