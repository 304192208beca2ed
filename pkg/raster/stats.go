package raster

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises the defined (finite) samples of a real raster.
type Stats struct {
	Min, Max, Mean float64
	Valid, Total   int
}

// UndefinedFraction returns the share of samples that are NaN or infinite.
func (s Stats) UndefinedFraction() float64 {
	if s.Total == 0 {
		return 0
	}

	return float64(s.Total-s.Valid) / float64(s.Total)
}

// Finite returns the finite samples of r as float64, in raster order.
func Finite(r *Raster[float32]) []float64 {
	out := make([]float64, 0, len(r.data))
	for _, v := range r.data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		out = append(out, f)
	}

	return out
}

// Summarize computes Stats over the finite samples of r. Min, Max and Mean are NaN when no sample
// is defined.
func Summarize(r *Raster[float32]) Stats {
	vals := Finite(r)
	st := Stats{Valid: len(vals), Total: len(r.data)}
	if len(vals) == 0 {
		st.Min, st.Max, st.Mean = math.NaN(), math.NaN(), math.NaN()
		return st
	}

	st.Min = floats.Min(vals)
	st.Max = floats.Max(vals)
	st.Mean = stat.Mean(vals, nil)

	return st
}

// Percentiles returns the empirical lo and hi quantiles (in [0,1]) of the finite samples of r.
// ok is false when r has no defined sample.
func Percentiles(r *Raster[float32], lo, hi float64) (float64, float64, bool) {
	vals := Finite(r)
	if len(vals) == 0 {
		return 0, 0, false
	}

	sort.Float64s(vals)

	return stat.Quantile(lo, stat.Empirical, vals, nil), stat.Quantile(hi, stat.Empirical, vals, nil), true
}

// Metadata is the scalar tag set persisted alongside a raster.
type Metadata map[string]string

// Merge returns a copy of m with the entries of other added or overridden.
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}

	return out
}

// StatsMetadata returns the min/max tags used for downstream rendering.
func StatsMetadata(r *Raster[float32]) Metadata {
	st := Summarize(r)

	return Metadata{
		"min": strconv.FormatFloat(st.Min, 'g', -1, 64),
		"max": strconv.FormatFloat(st.Max, 'g', -1, 64),
	}
}
