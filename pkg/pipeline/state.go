package pipeline

import (
	"github.com/askiada/go-insar/pkg/collaborator"
	"github.com/askiada/go-insar/pkg/displacement"
	"github.com/askiada/go-insar/pkg/interferogram"
	"github.com/askiada/go-insar/pkg/raster"
)

// State is the processing state shared by the steps of one run. Only the run worker touches it,
// one step at a time. Rasters put in the state are never mutated afterwards.
type State struct {
	Stack         *collaborator.Stack
	Geometry      *collaborator.Geometry
	DEM           *raster.Raster[float32]
	Landmask      *raster.Raster[float32]
	Reference     *raster.Raster[complex64]
	Secondary     *raster.Raster[complex64]
	Interferogram *interferogram.Product
	Unwrapped     *raster.Raster[float32]
	Displacement  *displacement.Field
	Scenes        []collaborator.Scene
}

// Collaborators groups the external systems the steps call into.
type Collaborators struct {
	Scenes   collaborator.SceneSource
	DEM      collaborator.DEMSource
	Landmask collaborator.LandmaskSource
	Stacker  collaborator.Stacker
	Aligner  collaborator.Aligner
	Geocoder collaborator.Geocoder
	Renderer collaborator.Renderer
}
