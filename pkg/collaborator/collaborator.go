// Package collaborator declares the external systems the processing pipeline depends on:
// acquisition sources, the SAR stack processor and the renderer. Implementations live outside the
// numeric core and are injected into the orchestrator.
package collaborator

import (
	"context"
	"time"

	"github.com/askiada/go-insar/pkg/raster"
)

// SceneRequest selects the acquisitions to fetch.
type SceneRequest struct {
	AOI            *raster.Bounds
	Bursts         []string
	Polarization   string
	OrbitDirection string
	// Dir is where the source keeps downloaded scenes.
	Dir string
}

// Scene is one downloaded acquisition.
type Scene struct {
	Acquired time.Time
	ID       string
	Burst    string
	// Path is the store path of the single look complex raster.
	Path string
}

// SceneSource downloads acquisitions (and their orbit files) for a request. A source may return
// scenes it already holds without downloading them again.
type SceneSource interface {
	Scenes(ctx context.Context, req SceneRequest) ([]Scene, error)
}

// GridRequest selects an auxiliary raster around the acquisitions.
type GridRequest struct {
	Bounds raster.Bounds
	// Resolution is the target pixel size, meters.
	Resolution float64
}

// DEMSource provides a digital elevation model in meters.
type DEMSource interface {
	DEM(ctx context.Context, req GridRequest) (*raster.Raster[float32], error)
}

// LandmaskSource provides a land/water mask, 1 for land and 0 for water.
type LandmaskSource interface {
	Landmask(ctx context.Context, req GridRequest) (*raster.Raster[float32], error)
}

// Stack is an ordered set of acquisitions sharing a reference.
type Stack struct {
	Reference   Scene
	Secondaries []Scene
	Bounds      raster.Bounds
}

// Pairs returns the reference/secondary scene pairs of the stack.
func (s *Stack) Pairs() [][2]Scene {
	out := make([][2]Scene, 0, len(s.Secondaries))
	for _, sec := range s.Secondaries {
		out = append(out, [2]Scene{s.Reference, sec})
	}

	return out
}

// Stacker groups scenes into a stack and picks the reference acquisition.
type Stacker interface {
	Stack(ctx context.Context, scenes []Scene) (*Stack, error)
}

// Aligner coregisters the secondary acquisition onto the reference grid using the DEM.
type Aligner interface {
	Align(ctx context.Context, stack *Stack, dem *raster.Raster[float32]) (ref, sec *raster.Raster[complex64], err error)
}

// Geometry describes the geographic grid products are delivered on.
type Geometry struct {
	CRS    string
	Bounds raster.Bounds
	// PixelSpacing is the ground size of a product pixel, meters.
	PixelSpacing float64
}

// Geocoder computes the radar-to-geographic transform at a target resolution.
type Geocoder interface {
	Geocode(ctx context.Context, stack *Stack, dem *raster.Raster[float32], resolution float64) (*Geometry, error)
}

// Layer is one raster to visualise.
type Layer struct {
	Data  *raster.Raster[float32]
	Name  string
	Title string
	Units string
	// Symmetric centres the colour scale on zero.
	Symmetric bool
}

// Renderer draws a layer with the epicenters overlaid and returns the path of the image.
type Renderer interface {
	Render(ctx context.Context, layer Layer, epicenters []raster.LatLon) (string, error)
}
