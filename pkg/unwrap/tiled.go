package unwrap

import (
	"math"

	"github.com/pkg/errors"

	"github.com/askiada/go-insar/internal/parallel"
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/raster"
)

// Grid is a row/column pair, used for tile counts and tile overlaps.
type Grid struct {
	Rows int `json:"rows" yaml:"rows"`
	Cols int `json:"cols" yaml:"cols"`
}

// Tiled splits the raster into Tiles, unwraps each tile extended by Overlap pixels with Inner and
// stitches the tiles in row-major order. Each tile is shifted by the multiple of 2π that best
// matches the pixels already placed in its overlap or, without a usable overlap, by the wrapped
// gradient across its seam with the placed tiles.
//
// When Inner is a Masker, tiles are unwrapped unmasked and the coherence mask is applied once to
// the stitched surface, so low coherence in an overlap does not break the alignment.
type Tiled struct {
	Inner   Unwrapper
	Tiles   Grid
	Overlap Grid
}

var _ Unwrapper = (*Tiled)(nil)

// NewTiled validates the tiling and returns a Tiled unwrapper.
func NewTiled(inner Unwrapper, tiles, overlap Grid) (*Tiled, error) {
	if inner == nil {
		return nil, insarerr.Configf("tiled unwrapper needs an inner unwrapper")
	}

	if tiles.Rows < 1 || tiles.Cols < 1 {
		return nil, insarerr.Configf("tile counts must be positive, got %dx%d", tiles.Rows, tiles.Cols)
	}

	if overlap.Rows < 0 || overlap.Cols < 0 {
		return nil, insarerr.Configf("tile overlap must not be negative, got %dx%d", overlap.Rows, overlap.Cols)
	}

	return &Tiled{Inner: inner, Tiles: tiles, Overlap: overlap}, nil
}

type tile struct {
	unwrapped *raster.Raster[float32]
	// extended region
	x0, y0, x1, y1 int
	// core region, disjoint between tiles
	cx0, cy0, cx1, cy1 int
}

// Unwrap implements Unwrapper.
func (t *Tiled) Unwrap(phase, coherence *raster.Raster[float32]) (*raster.Raster[float32], error) {
	if t.Tiles.Rows == 1 && t.Tiles.Cols == 1 {
		return t.Inner.Unwrap(phase, coherence)
	}

	if coherence != nil && !raster.SameShape(phase, coherence) {
		return nil, errors.Wrap(insarerr.ErrConfig, "phase and coherence shapes differ")
	}

	masker, deferMask := t.Inner.(Masker)

	width, height := phase.Width(), phase.Height()
	rows, cols := min(t.Tiles.Rows, height), min(t.Tiles.Cols, width)
	th := (height + rows - 1) / rows
	tw := (width + cols - 1) / cols

	var tiles []*tile
	for cy := 0; cy < height; cy += th {
		for cx := 0; cx < width; cx += tw {
			cy1, cx1 := min(cy+th, height), min(cx+tw, width)
			tiles = append(tiles, &tile{
				cx0: cx, cy0: cy, cx1: cx1, cy1: cy1,
				x0: max(cx-t.Overlap.Cols, 0), y0: max(cy-t.Overlap.Rows, 0),
				x1: min(cx1+t.Overlap.Cols, width), y1: min(cy1+t.Overlap.Rows, height),
			})
		}
	}

	err := parallel.Each(len(tiles), func(i int) error {
		tl := tiles[i]

		p, err := window(phase, tl.x0, tl.y0, tl.x1, tl.y1)
		if err != nil {
			return err
		}

		var c *raster.Raster[float32]
		if coherence != nil && !deferMask {
			c, err = window(coherence, tl.x0, tl.y0, tl.x1, tl.y1)
			if err != nil {
				return err
			}
		}

		tl.unwrapped, err = t.Inner.Unwrap(p, c)
		if err != nil {
			return errors.Wrapf(err, "unable to unwrap tile at (%d, %d)", tl.cx0, tl.cy0)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]float32, width*height)
	placed := make([]bool, width*height)
	for i := range out {
		out[i] = float32(math.NaN())
	}

	for _, tl := range tiles {
		offset, ok := tl.offset(out, placed, width)
		if !ok {
			offset = tl.seamOffset(phase, out, placed)
		}

		ew := tl.x1 - tl.x0
		data := tl.unwrapped.Data()

		for y := tl.cy0; y < tl.cy1; y++ {
			for x := tl.cx0; x < tl.cx1; x++ {
				v := data[(y-tl.y0)*ew+(x-tl.x0)]
				out[y*width+x] = v + float32(offset)
				placed[y*width+x] = true
			}
		}
	}

	stitched, err := raster.WithData(phase, out)
	if err != nil {
		return nil, err
	}

	if deferMask {
		return masker.Mask(stitched, coherence)
	}

	return stitched, nil
}

// offset returns the 2π multiple that aligns the tile with the already placed pixels it overlaps.
// It reports false when no overlapping pixel is defined on both sides.
func (tl *tile) offset(out []float32, placed []bool, width int) (float64, bool) {
	ew := tl.x1 - tl.x0
	data := tl.unwrapped.Data()

	var sum float64
	var n int

	for y := tl.y0; y < tl.y1; y++ {
		for x := tl.x0; x < tl.x1; x++ {
			idx := y*width + x
			if !placed[idx] {
				continue
			}

			d := float64(out[idx]) - float64(data[(y-tl.y0)*ew+(x-tl.x0)])
			if math.IsNaN(d) {
				continue
			}
			sum += d
			n++
		}
	}

	if n == 0 {
		return 0, false
	}

	return roundCycles(sum / float64(n)), true
}

// value returns the tile sample at image coordinates (x, y).
func (tl *tile) value(x, y int) float64 {
	return float64(tl.unwrapped.At(x-tl.x0, y-tl.y0))
}

// seamOffset aligns the tile through its left and top seams. On every core row (column) it takes
// the first defined tile pixel and the nearest defined placed pixel before the seam, and expects
// their difference to be the wrapped phase gradient between them. Undefined pixels on either side
// of the seam are crossed the way the path integrator crosses them. It returns 0 when the tile
// touches no placed pixel.
func (tl *tile) seamOffset(phase *raster.Raster[float32], out []float32, placed []bool) float64 {
	width := phase.Width()

	var sum float64
	var n int

	add := func(px, py, tx, ty int) {
		expected := float64(out[py*width+px]) + wrappedDiff(float64(phase.At(px, py)), float64(phase.At(tx, ty)))
		sum += expected - tl.value(tx, ty)
		n++
	}

	defined := func(x, y int) bool {
		i := y*width + x
		return placed[i] && !math.IsNaN(float64(out[i]))
	}

	if tl.cx0 > 0 {
		for y := tl.cy0; y < tl.cy1; y++ {
			tx := firstDefined(tl.cx0, tl.cx1, func(x int) bool { return !math.IsNaN(tl.value(x, y)) })
			px := lastDefined(tl.cx0, func(x int) bool { return defined(x, y) })
			if tx >= 0 && px >= 0 {
				add(px, y, tx, y)
			}
		}
	}

	if tl.cy0 > 0 {
		for x := tl.cx0; x < tl.cx1; x++ {
			ty := firstDefined(tl.cy0, tl.cy1, func(y int) bool { return !math.IsNaN(tl.value(x, y)) })
			py := lastDefined(tl.cy0, func(y int) bool { return defined(x, y) })
			if ty >= 0 && py >= 0 {
				add(x, py, x, ty)
			}
		}
	}

	if n == 0 {
		return 0
	}

	return roundCycles(sum / float64(n))
}

// firstDefined returns the first i in [from, to) where ok holds, or -1.
func firstDefined(from, to int, ok func(int) bool) int {
	for i := from; i < to; i++ {
		if ok(i) {
			return i
		}
	}

	return -1
}

// lastDefined returns the last i in [0, before) where ok holds, or -1.
func lastDefined(before int, ok func(int) bool) int {
	for i := before - 1; i >= 0; i-- {
		if ok(i) {
			return i
		}
	}

	return -1
}

func roundCycles(d float64) float64 {
	return 2 * math.Pi * math.Round(d/(2*math.Pi))
}

// window copies the [x0, x1) x [y0, y1) region of r.
func window(r *raster.Raster[float32], x0, y0, x1, y1 int) (*raster.Raster[float32], error) {
	return raster.Generate(x1-x0, y1-y0, func(x, y int) float32 {
		return r.At(x0+x, y0+y)
	})
}
