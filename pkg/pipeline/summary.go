package pipeline

import (
	"time"

	"github.com/askiada/go-insar/pkg/raster"
)

// Range is the extent of the defined samples of a raster.
type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

func rangeOf(r *raster.Raster[float32]) *Range {
	if r == nil {
		return nil
	}

	st := raster.Summarize(r)
	if st.Valid == 0 {
		return nil
	}

	return &Range{Min: st.Min, Max: st.Max, Mean: st.Mean}
}

// Summary gathers the statistics of the products of a run. Fields are nil for products that were
// not computed or hold no defined sample.
type Summary struct {
	ProcessedAt time.Time `json:"processed_at"`
	Phase       *Range    `json:"phase,omitempty"`
	Coherence   *Range    `json:"coherence,omitempty"`
	Unwrapped   *Range    `json:"unwrapped,omitempty"`
	LOS         *Range    `json:"los_mm,omitempty"`
	Vertical    *Range    `json:"vertical_mm,omitempty"`
	EastWest    *Range    `json:"east_west_mm,omitempty"`
	Resolution  float64   `json:"resolution"`
	// UndefinedFraction is the share of undefined unwrapped pixels, zero before unwrapping.
	UndefinedFraction float64 `json:"undefined_fraction"`
}

// Summary returns the product statistics as of the last finished step. It is safe to call while
// Run is in progress.
func (p *Pipeline) Summary() Summary {
	p.mu.RLock()
	sum := p.summary
	p.mu.RUnlock()

	for _, r := range []**Range{&sum.Phase, &sum.Coherence, &sum.Unwrapped, &sum.LOS, &sum.Vertical, &sum.EastWest} {
		if *r != nil {
			cp := **r
			*r = &cp
		}
	}

	return sum
}

// summarize computes the statistics of the state. Only the run worker calls it.
func (p *Pipeline) summarize(at time.Time) Summary {
	st := p.state
	sum := Summary{
		ProcessedAt: at,
		Resolution:  p.cfg.Resolution,
	}

	if st.Interferogram != nil {
		sum.Phase = rangeOf(st.Interferogram.Phase)
		sum.Coherence = rangeOf(st.Interferogram.Coherence)
	}

	if st.Unwrapped != nil {
		sum.Unwrapped = rangeOf(st.Unwrapped)
		sum.UndefinedFraction = raster.Summarize(st.Unwrapped).UndefinedFraction()
	}

	if st.Displacement != nil {
		sum.LOS = rangeOf(st.Displacement.LOS)
		sum.Vertical = rangeOf(st.Displacement.Vertical)
		sum.EastWest = rangeOf(st.Displacement.EastWest)
	}

	return sum
}
