package displacement

import (
	"math"
	"strings"
)

// Projector projects a line-of-sight displacement onto the vertical and east-west axes. Either
// component is NaN when the geometry cannot resolve it.
type Projector interface {
	Project(los float64) (vertical, eastWest float64)
}

// Headings of the Sentinel-1 ground track, degrees clockwise from north.
const (
	AscendingHeading  = -13.0
	DescendingHeading = -167.0
)

// HeadingFor returns the nominal ground-track heading for an orbit direction, "A" (ascending) or
// "D" (descending).
func HeadingFor(orbit string) float64 {
	if strings.EqualFold(orbit, "A") {
		return AscendingHeading
	}

	return DescendingHeading
}

// minProjection is the smallest LOS projection factor considered resolvable.
const minProjection = 1e-6

// IncidenceProjection attributes the whole LOS displacement to a single axis at a time, for a
// right-looking sensor: vertical = los / cos(incidence) and
// east-west = los / (-sin(incidence) · cos(heading)).
type IncidenceProjection struct {
	// Incidence is the look angle from vertical, degrees.
	Incidence float64
	// Heading is the ground-track azimuth, degrees clockwise from north.
	Heading float64
}

var _ Projector = IncidenceProjection{}

// Project implements Projector.
func (p IncidenceProjection) Project(los float64) (float64, float64) {
	inc := p.Incidence * math.Pi / 180
	head := p.Heading * math.Pi / 180

	return divide(los, math.Cos(inc)), divide(los, -math.Sin(inc)*math.Cos(head))
}

func divide(los, factor float64) float64 {
	if math.Abs(factor) < minProjection {
		return math.NaN()
	}

	return los / factor
}
