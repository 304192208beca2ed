// Package displacement converts unwrapped interferometric phase into ground displacement.
package displacement

import (
	"math"

	"github.com/pkg/errors"

	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/raster"
)

// Components selects the optional decomposed outputs.
type Components struct {
	Vertical bool `json:"vertical" yaml:"vertical"`
	EastWest bool `json:"east_west" yaml:"east_west"`
}

// Params configures a Converter.
type Params struct {
	// Projector decomposes LOS. Required when any component is enabled.
	Projector Projector
	// Wavelength is the radar carrier wavelength, meters.
	Wavelength float64
	// DetrendWavelength is the detrending cut-off, meters. Zero disables detrending.
	DetrendWavelength float64
	// PixelSpacing is the ground size of a pixel, meters.
	PixelSpacing float64
	Components   Components
}

// Field is a displacement field in millimetres. Vertical and EastWest are nil unless enabled.
type Field struct {
	LOS      *raster.Raster[float32]
	Vertical *raster.Raster[float32]
	EastWest *raster.Raster[float32]
}

// Converter turns unwrapped phase into a Field.
type Converter struct {
	params Params
}

// NewConverter validates params and returns a Converter.
func NewConverter(params Params) (*Converter, error) {
	if params.Wavelength <= 0 || math.IsNaN(params.Wavelength) {
		return nil, insarerr.Configf("radar wavelength must be positive, got %g", params.Wavelength)
	}

	if params.DetrendWavelength != 0 && params.PixelSpacing <= 0 {
		return nil, insarerr.Configf("detrending needs a positive pixel spacing, got %g", params.PixelSpacing)
	}

	if (params.Components.Vertical || params.Components.EastWest) && params.Projector == nil {
		return nil, insarerr.Configf("component decomposition needs a projector")
	}

	return &Converter{params: params}, nil
}

// Detrend removes the large-wavelength trend from unwrapped, if enabled.
func (c *Converter) Detrend(unwrapped *raster.Raster[float32]) (*raster.Raster[float32], error) {
	out, err := Detrend(unwrapped, c.params.DetrendWavelength, c.params.PixelSpacing)
	if err != nil {
		return nil, errors.Wrap(err, "unable to detrend")
	}

	return out, nil
}

// LOS converts unwrapped phase to line-of-sight millimetres.
func (c *Converter) LOS(unwrapped *raster.Raster[float32]) *raster.Raster[float32] {
	return ToLOS(unwrapped, c.params.Wavelength)
}

// Decompose fills the enabled components of field from its LOS raster.
func (c *Converter) Decompose(field *Field) {
	if !c.params.Components.Vertical && !c.params.Components.EastWest {
		return
	}

	data := field.LOS.Data()
	vertical := make([]float32, len(data))
	eastWest := make([]float32, len(data))

	for i, los := range data {
		v, e := c.params.Projector.Project(float64(los))
		vertical[i] = float32(v)
		eastWest[i] = float32(e)
	}

	if c.params.Components.Vertical {
		field.Vertical, _ = raster.WithData(field.LOS, vertical)
	}

	if c.params.Components.EastWest {
		field.EastWest, _ = raster.WithData(field.LOS, eastWest)
	}
}

// Convert detrends, converts and decomposes unwrapped phase.
func (c *Converter) Convert(unwrapped *raster.Raster[float32]) (*Field, error) {
	detrended, err := c.Detrend(unwrapped)
	if err != nil {
		return nil, err
	}

	field := &Field{LOS: c.LOS(detrended)}
	c.Decompose(field)

	return field, nil
}
