// Package interferogram derives wrapped phase and coherence from two coregistered complex rasters.
//
// The kernels are computation bound and never block or report progress. Callers that want
// progress between stages drive them one by one through Engine.
package interferogram

import (
	"github.com/pkg/errors"

	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/raster"
)

// Params configures an Engine.
type Params struct {
	Filter FilterParams
	Looks  Looks
	Window int
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		Window: DefaultWindow,
		Looks:  Looks{Rows: 1, Cols: 4},
		Filter: FilterParams{PatchSize: 32, Alpha: 0.5},
	}
}

// Product is the output of interferogram processing. All rasters share the multilooked shape.
type Product struct {
	// Interferogram is the multilooked and filtered complex interferogram.
	Interferogram *raster.Raster[complex64]
	// Phase is the wrapped phase of Interferogram, in (-π, π].
	Phase *raster.Raster[float32]
	// Coherence is the windowed coherence estimate, in [0, 1].
	Coherence *raster.Raster[float32]
}

// Engine runs the interferogram stages with fixed parameters.
type Engine struct {
	params Params
}

// NewEngine validates params and returns an Engine.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Looks.Validate(); err != nil {
		return nil, err
	}

	if err := params.Filter.Validate(); err != nil {
		return nil, err
	}

	if params.Window < 1 || params.Window%2 == 0 {
		return nil, insarerr.Configf("coherence window must be a positive odd number, got %d", params.Window)
	}

	return &Engine{params: params}, nil
}

// Params returns the engine parameters.
func (e *Engine) Params() Params {
	return e.params
}

// Multilooked is the coarsened interferogram and intensities ready for coherence estimation.
type Multilooked struct {
	Interferogram *raster.Raster[complex64]
	RefPower      *raster.Raster[float32]
	SecPower      *raster.Raster[float32]
}

// Multilook forms the interferogram of ref and sec over their common extent and coarsens it.
func (e *Engine) Multilook(ref, sec *raster.Raster[complex64]) (*Multilooked, error) {
	pair, err := Overlap(ref, sec)
	if err != nil {
		return nil, err
	}

	ifg, p1, p2, err := MultilookPair(pair, e.params.Looks)
	if err != nil {
		return nil, errors.Wrap(err, "unable to multilook")
	}

	return &Multilooked{Interferogram: ifg, RefPower: p1, SecPower: p2}, nil
}

// Coherence estimates the coherence of a multilooked interferogram.
func (e *Engine) Coherence(m *Multilooked) (*raster.Raster[float32], error) {
	coh, err := Coherence(m.Interferogram, m.RefPower, m.SecPower, e.params.Window)
	if err != nil {
		return nil, errors.Wrap(err, "unable to estimate coherence")
	}

	return coh, nil
}

// Filter applies the Goldstein filter and extracts the wrapped phase.
func (e *Engine) Filter(m *Multilooked, coh *raster.Raster[float32]) (*Product, error) {
	filtered, err := Goldstein(m.Interferogram, coh, e.params.Filter)
	if err != nil {
		return nil, errors.Wrap(err, "unable to filter phase")
	}

	return &Product{
		Interferogram: filtered,
		Phase:         Phase(filtered),
		Coherence:     coh,
	}, nil
}

// Process runs every stage in order.
func (e *Engine) Process(ref, sec *raster.Raster[complex64]) (*Product, error) {
	m, err := e.Multilook(ref, sec)
	if err != nil {
		return nil, err
	}

	coh, err := e.Coherence(m)
	if err != nil {
		return nil, err
	}

	return e.Filter(m, coh)
}
