// Package synthetic provides deterministic stand-ins for the acquisition and SAR processing
// collaborators. The scene is a speckled radar image over a Gaussian subsidence bowl, with a
// DEM hill and a water body in the south-west corner.
package synthetic

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"path"
	"sort"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-insar/pkg/collaborator"
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/raster"
)

// Generator produces the synthetic acquisitions and auxiliary rasters.
type Generator struct {
	store     raster.Store
	downloads atomic.Int64

	// Configuration
	Width, Height int
	Bounds        raster.Bounds
	Acquisitions  int           // scenes per burst, at least two
	Start         time.Time     // first acquisition
	Revisit       time.Duration // time between acquisitions
	Wavelength    float64       // radar wavelength, meters
	Subsidence    float64       // peak LOS displacement of the bowl, millimetres
	BowlRadius    float64       // pixels, standard deviation of the bowl
	PhaseNoise    float64       // radians, standard deviation of the secondary phase noise
	WaterFraction float64       // share of columns and rows covered by water in the corner
	Seed          int64
}

// New returns a generator saving its scenes to store.
func New(store raster.Store) *Generator {
	return &Generator{
		store:         store,
		Width:         96,
		Height:        64,
		Bounds:        raster.Bounds{West: 36.5, East: 38, South: 37, North: 38},
		Acquisitions:  2,
		Start:         time.Date(2023, 1, 29, 15, 34, 0, 0, time.UTC),
		Revisit:       12 * 24 * time.Hour,
		Wavelength:    0.055465763,
		Subsidence:    -12,
		BowlRadius:    10,
		PhaseNoise:    0.2,
		WaterFraction: 0.15,
		Seed:          1,
	}
}

// Downloads returns how many scenes were generated rather than found in the store.
func (g *Generator) Downloads() int64 {
	return g.downloads.Load()
}

// Bowl returns the synthetic LOS displacement in millimetres at column x, row y.
func (g *Generator) Bowl(x, y int) float64 {
	cx, cy := float64(g.Width)/2, float64(g.Height)/2
	dx, dy := float64(x)-cx, float64(y)-cy

	return g.Subsidence * math.Exp(-(dx*dx+dy*dy)/(2*g.BowlRadius*g.BowlRadius))
}

func (g *Generator) validate() error {
	if g.Width < 1 || g.Height < 1 {
		return insarerr.Configf("synthetic scene must not be empty, got %dx%d", g.Width, g.Height)
	}

	if g.Acquisitions < 1 {
		return insarerr.Configf("synthetic scene needs acquisitions, got %d", g.Acquisitions)
	}

	return nil
}

// Scenes implements collaborator.SceneSource. Scenes already in the store are not generated again.
func (g *Generator) Scenes(ctx context.Context, req collaborator.SceneRequest) ([]collaborator.Scene, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}

	var scenes []collaborator.Scene

	for b, burst := range req.Bursts {
		for i := 0; i < g.Acquisitions; i++ {
			acquired := g.Start.Add(time.Duration(i) * g.Revisit)
			id := fmt.Sprintf("S1_%s_%s_%s", burst, req.Polarization, acquired.Format("20060102T150405"))
			p := path.Join(req.Dir, id)

			exists, err := g.store.Exists(ctx, p)
			if err != nil {
				return nil, insarerr.ExternalIO(err, "unable to check scene "+id)
			}

			if !exists {
				slc, err := g.slc(i, int64(b))
				if err != nil {
					return nil, err
				}

				err = raster.Save(ctx, g.store, slc, p, raster.Metadata{"burst": burst, "acquired": acquired.Format(time.RFC3339)})
				if err != nil {
					return nil, err
				}

				g.downloads.Add(1)
			}

			scenes = append(scenes, collaborator.Scene{Acquired: acquired, ID: id, Burst: burst, Path: p})
		}
	}

	return scenes, nil
}

// slc renders acquisition i. Every acquisition shares the speckle phase of the burst; later ones
// carry the bowl displacement and their own phase noise.
func (g *Generator) slc(i int, burst int64) (*raster.Raster[complex64], error) {
	speckle := rand.New(rand.NewSource(g.Seed + burst))
	noise := rand.New(rand.NewSource(g.Seed + burst*1000 + int64(i)))

	phaseToMM := g.Wavelength / (4 * math.Pi) * 1000

	data := make([]complex64, g.Width*g.Height)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			amp := 1 + 0.5*speckle.Float64()
			phase := 2 * math.Pi * speckle.Float64()

			if i > 0 {
				phase -= g.Bowl(x, y)/phaseToMM + g.PhaseNoise*noise.NormFloat64()
			}

			data[y*g.Width+x] = complex64(cmplx.Rect(amp, phase))
		}
	}

	return raster.New(g.Width, g.Height, data, raster.WithBounds(g.Bounds), raster.WithCRS("radar"))
}

// DEM implements collaborator.DEMSource with a hill peaking in the north-east.
func (g *Generator) DEM(_ context.Context, _ collaborator.GridRequest) (*raster.Raster[float32], error) {
	if err := g.validate(); err != nil {
		return nil, err
	}

	cx, cy := 0.75*float64(g.Width), 0.25*float64(g.Height)
	sigma := float64(g.Width) / 4

	return raster.Generate(g.Width, g.Height, func(x, y int) float32 {
		dx, dy := float64(x)-cx, float64(y)-cy
		return float32(200 + 1800*math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma)))
	}, raster.WithBounds(g.Bounds), raster.WithCRS("EPSG:4326"))
}

// Landmask implements collaborator.LandmaskSource: water in the south-west corner, land
// elsewhere.
func (g *Generator) Landmask(_ context.Context, _ collaborator.GridRequest) (*raster.Raster[float32], error) {
	if err := g.validate(); err != nil {
		return nil, err
	}

	wx := int(g.WaterFraction * float64(g.Width))
	wy := g.Height - int(g.WaterFraction*float64(g.Height))

	return raster.Generate(g.Width, g.Height, func(x, y int) float32 {
		if x < wx && y >= wy {
			return 0
		}
		return 1
	}, raster.WithBounds(g.Bounds), raster.WithCRS("EPSG:4326"))
}

// Stack implements collaborator.Stacker. The earliest acquisition is the reference.
func (g *Generator) Stack(_ context.Context, scenes []collaborator.Scene) (*collaborator.Stack, error) {
	if len(scenes) == 0 {
		return nil, insarerr.Configf("no scenes to stack")
	}

	sorted := append([]collaborator.Scene(nil), scenes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Acquired.Before(sorted[j].Acquired)
	})

	return &collaborator.Stack{Reference: sorted[0], Secondaries: sorted[1:], Bounds: g.Bounds}, nil
}

// Align implements collaborator.Aligner. Synthetic scenes already share a grid, so alignment
// loads the reference and the first secondary.
func (g *Generator) Align(ctx context.Context, stack *collaborator.Stack, _ *raster.Raster[float32]) (ref, sec *raster.Raster[complex64], err error) {
	if len(stack.Secondaries) == 0 {
		return nil, nil, insarerr.Configf("stack has no secondary acquisition")
	}

	ref, err = raster.Load[complex64](ctx, g.store, stack.Reference.Path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to load reference")
	}

	sec, err = raster.Load[complex64](ctx, g.store, stack.Secondaries[0].Path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to load secondary")
	}

	return ref, sec, nil
}

// Geocode implements collaborator.Geocoder on a geographic grid.
func (g *Generator) Geocode(_ context.Context, stack *collaborator.Stack, _ *raster.Raster[float32], resolution float64) (*collaborator.Geometry, error) {
	if resolution <= 0 {
		return nil, insarerr.Configf("resolution must be positive, got %g", resolution)
	}

	return &collaborator.Geometry{CRS: "EPSG:4326", Bounds: stack.Bounds, PixelSpacing: resolution}, nil
}

var (
	_ collaborator.SceneSource    = (*Generator)(nil)
	_ collaborator.DEMSource      = (*Generator)(nil)
	_ collaborator.LandmaskSource = (*Generator)(nil)
	_ collaborator.Stacker        = (*Generator)(nil)
	_ collaborator.Aligner        = (*Generator)(nil)
	_ collaborator.Geocoder       = (*Generator)(nil)
)
