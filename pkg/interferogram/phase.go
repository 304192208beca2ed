package interferogram

import (
	"math"
	"math/cmplx"

	"github.com/askiada/go-insar/pkg/raster"
)

// maxPhase32 is the largest float32 not greater than π.
var maxPhase32 = math.Nextafter32(float32(math.Pi), 0)

// Wrap maps an angle in radians into (-π, π].
func Wrap(p float64) float64 {
	w := math.Atan2(math.Sin(p), math.Cos(p))
	if w <= -math.Pi {
		w += 2 * math.Pi
	}

	return w
}

// WrapPhase maps an angle into (-π, π] and rounds it to float32 without leaving the interval.
// float32(π) is slightly larger than π, so values that would round onto ±float32(π) are
// pinned to the largest float32 inside the interval.
func WrapPhase(p float64) float32 {
	if math.IsNaN(p) {
		return float32(math.NaN())
	}

	f := float32(Wrap(p))
	if float64(f) > math.Pi || float64(f) <= -math.Pi {
		return maxPhase32
	}

	return f
}

// Phase returns the wrapped argument of every interferogram sample.
func Phase(ifg *raster.Raster[complex64]) *raster.Raster[float32] {
	return raster.Map(ifg, func(z complex64) float32 {
		return WrapPhase(cmplx.Phase(complex128(z)))
	})
}

// Intensity returns |z|² of every sample.
func Intensity(slc *raster.Raster[complex64]) *raster.Raster[float32] {
	return raster.Map(slc, func(z complex64) float32 {
		re, im := float64(real(z)), float64(imag(z))
		return float32(re*re + im*im)
	})
}
