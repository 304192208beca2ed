// Package render draws the products of a run: PNG heat maps of the rasters and an HTML report
// of the step durations.
package render

import (
	"context"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/askiada/go-insar/pkg/collaborator"
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/raster"
)

// Percentiles used to clip the colour scale.
const (
	clipLow  = 0.01
	clipHigh = 0.99
)

const paletteSize = 64

// Plotter renders layers as PNG heat maps in a directory.
type Plotter struct {
	dir           string
	width, height vg.Length
}

// NewPlotter returns a plotter writing into dir.
func NewPlotter(dir string) *Plotter {
	return &Plotter{dir: dir, width: 8 * vg.Inch, height: 6 * vg.Inch}
}

// grid adapts a raster to plotter.GridXYZ. Rows are flipped so north is up.
type grid struct {
	r      *raster.Raster[float32]
	bounds raster.Bounds
}

func (g grid) Dims() (c, r int) { return g.r.Width(), g.r.Height() }

func (g grid) Z(c, r int) float64 { return float64(g.r.At(c, g.r.Height()-1-r)) }

func (g grid) X(c int) float64 {
	if g.bounds.IsZero() {
		return float64(c)
	}

	return g.bounds.West + (float64(c)+0.5)*(g.bounds.East-g.bounds.West)/float64(g.r.Width())
}

func (g grid) Y(r int) float64 {
	if g.bounds.IsZero() {
		return float64(r)
	}

	return g.bounds.South + (float64(r)+0.5)*(g.bounds.North-g.bounds.South)/float64(g.r.Height())
}

// colourRange returns the clipped colour scale of r.
func colourRange(r *raster.Raster[float32], symmetric bool) (float64, float64, error) {
	lo, hi, ok := raster.Percentiles(r, clipLow, clipHigh)
	if !ok {
		return 0, 0, insarerr.Computef("raster has no defined sample")
	}

	if symmetric {
		m := math.Max(math.Abs(lo), math.Abs(hi))
		lo, hi = -m, m
	}

	if hi <= lo {
		lo, hi = lo-1, hi+1
	}

	return lo, hi, nil
}

func layerPalette(symmetric bool) palette.Palette {
	if !symmetric {
		return palette.Heat(paletteSize, 1)
	}

	cm := moreland.SmoothBlueRed()
	cm.SetMin(0)
	cm.SetMax(1)

	return cm.Palette(paletteSize)
}

// Render implements collaborator.Renderer.
func (p *Plotter) Render(ctx context.Context, layer collaborator.Layer, epicenters []raster.LatLon) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, "render "+layer.Name)
	}

	if layer.Data == nil {
		return "", insarerr.Configf("layer %s has no data", layer.Name)
	}

	lo, hi, err := colourRange(layer.Data, layer.Symmetric)
	if err != nil {
		return "", errors.Wrapf(err, "layer %s", layer.Name)
	}

	pal := layerPalette(layer.Symmetric)
	colours := pal.Colors()

	g := grid{r: layer.Data, bounds: layer.Data.Bounds()}
	hm := plotter.NewHeatMap(g, pal)
	hm.Min, hm.Max = lo, hi
	hm.Underflow = colours[0]
	hm.Overflow = colours[len(colours)-1]
	hm.NaN = color.Transparent

	pl := plot.New()
	pl.Title.Text = layer.Title
	if layer.Units != "" {
		pl.Title.Text += " (" + layer.Units + ")"
	}

	if g.bounds.IsZero() {
		pl.X.Label.Text, pl.Y.Label.Text = "Column", "Row"
	} else {
		pl.X.Label.Text, pl.Y.Label.Text = "Longitude", "Latitude"
	}

	pl.Add(hm)

	if pts := epicenterPoints(g.bounds, epicenters); len(pts) > 0 {
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return "", errors.Wrap(err, "unable to plot epicenters")
		}

		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Color = color.RGBA{R: 255, A: 255}
		sc.GlyphStyle.Radius = vg.Points(6)
		pl.Add(sc)
	}

	err = os.MkdirAll(p.dir, 0o755)
	if err != nil {
		return "", insarerr.ExternalIO(err, "unable to create plot directory")
	}

	out := filepath.Join(p.dir, layer.Name+".png")

	err = pl.Save(p.width, p.height, out)
	if err != nil {
		return "", insarerr.ExternalIO(err, "unable to save plot "+out)
	}

	return out, nil
}

// epicenterPoints returns the epicenters inside bounds. Nothing is drawn on an ungeoreferenced
// raster.
func epicenterPoints(bounds raster.Bounds, epicenters []raster.LatLon) plotter.XYs {
	if bounds.IsZero() {
		return nil
	}

	var pts plotter.XYs
	for _, e := range epicenters {
		if bounds.Contains(e.Lat, e.Lon) {
			pts = append(pts, plotter.XY{X: e.Lon, Y: e.Lat})
		}
	}

	return pts
}

var _ collaborator.Renderer = (*Plotter)(nil)
