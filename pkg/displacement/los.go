package displacement

import (
	"math"

	"github.com/askiada/go-insar/pkg/raster"
)

// SentinelWavelength is the Sentinel-1 C-band carrier wavelength in meters.
const SentinelWavelength = 0.055465763

// PhaseToMillimetres converts unwrapped phase (radians) to line-of-sight displacement (mm) for a
// carrier of the given wavelength (meters).
func PhaseToMillimetres(phase, wavelength float64) float64 {
	return wavelength / (4 * math.Pi) * phase * 1000
}

// ToLOS converts an unwrapped phase raster into line-of-sight displacement in millimetres.
// Undefined phase stays undefined.
func ToLOS(unwrapped *raster.Raster[float32], wavelength float64) *raster.Raster[float32] {
	return raster.Map(unwrapped, func(p float32) float32 {
		return float32(PhaseToMillimetres(float64(p), wavelength))
	})
}
