package raster

import "fmt"

// Bounds is a geographic extent in degrees.
type Bounds struct {
	West  float64 `json:"west" yaml:"west"`
	East  float64 `json:"east" yaml:"east"`
	South float64 `json:"south" yaml:"south"`
	North float64 `json:"north" yaml:"north"`
}

// IsZero reports whether no extent was set.
func (b Bounds) IsZero() bool {
	return b == Bounds{}
}

// Sub returns the extent covered by the top-left width x height pixels of a fullW x fullH grid.
// Rows run from north to south.
func (b Bounds) Sub(fullW, fullH, width, height int) Bounds {
	if b.IsZero() || fullW == 0 || fullH == 0 {
		return b
	}

	dx := (b.East - b.West) / float64(fullW)
	dy := (b.North - b.South) / float64(fullH)

	return Bounds{
		West:  b.West,
		East:  b.West + dx*float64(width),
		North: b.North,
		South: b.North - dy*float64(height),
	}
}

// Contains reports whether the point lies inside the extent.
func (b Bounds) Contains(lat, lon float64) bool {
	return lon >= b.West && lon <= b.East && lat >= b.South && lat <= b.North
}

func (b Bounds) String() string {
	return fmt.Sprintf("[W %.4f, E %.4f, S %.4f, N %.4f]", b.West, b.East, b.South, b.North)
}

// Reflect maps index i onto [0, n) with symmetric boundary handling (d c b a | a b c d | d c b a).
func Reflect(i, n int) int {
	if n == 1 {
		return 0
	}

	period := 2 * n

	i %= period
	if i < 0 {
		i += period
	}

	if i >= n {
		i = period - 1 - i
	}

	return i
}

// LatLon is a geographic point in degrees.
type LatLon struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}
