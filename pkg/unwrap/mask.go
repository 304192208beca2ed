package unwrap

import (
	"math"

	"github.com/pkg/errors"

	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/raster"
)

// MaskWater sets phase to NaN wherever landmask is zero (water). Landmask values other than zero
// are land.
func MaskWater(phase, landmask *raster.Raster[float32]) (*raster.Raster[float32], error) {
	if !raster.SameShape(phase, landmask) {
		return nil, errors.Wrapf(insarerr.ErrConfig, "phase is %dx%d but landmask is %dx%d",
			phase.Width(), phase.Height(), landmask.Width(), landmask.Height())
	}

	return raster.Zip(phase, landmask, func(p, land float32) float32 {
		if land == 0 {
			return float32(math.NaN())
		}

		return p
	})
}

// Resample maps r onto a width x height grid by nearest neighbour. It is used to bring auxiliary
// rasters such as the landmask onto the interferogram grid.
func Resample(r *raster.Raster[float32], width, height int) (*raster.Raster[float32], error) {
	if r.Width() == width && r.Height() == height {
		return r, nil
	}

	sx := float64(r.Width()) / float64(width)
	sy := float64(r.Height()) / float64(height)

	return raster.Generate(width, height, func(x, y int) float32 {
		srcX := min(int((float64(x)+0.5)*sx), r.Width()-1)
		srcY := min(int((float64(y)+0.5)*sy), r.Height()-1)

		return r.At(srcX, srcY)
	}, raster.WithBounds(r.Bounds()), raster.WithCRS(r.CRS()))
}
