package interferogram

import (
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/raster"
)

// Looks is the multilooking factor along rows (azimuth) and columns (range).
type Looks struct {
	Rows int `json:"rows" yaml:"rows"`
	Cols int `json:"cols" yaml:"cols"`
}

// IsIdentity reports whether multilooking with l leaves rasters unchanged.
func (l Looks) IsIdentity() bool {
	return l.Rows == 1 && l.Cols == 1
}

// Validate checks that both factors are positive.
func (l Looks) Validate() error {
	if l.Rows < 1 || l.Cols < 1 {
		return insarerr.Configf("looks must be positive, got %dx%d", l.Rows, l.Cols)
	}

	return nil
}

// outputSize returns the coarsened shape, trailing rows and columns that do not fill a full block
// being dropped.
func (l Looks) outputSize(width, height int) (int, int, error) {
	if err := l.Validate(); err != nil {
		return 0, 0, err
	}

	w, h := width/l.Cols, height/l.Rows
	if w == 0 || h == 0 {
		return 0, 0, insarerr.Configf("looks %dx%d leave nothing of a %dx%d raster", l.Rows, l.Cols, width, height)
	}

	return w, h, nil
}

// Multilook block-averages r over l.Rows x l.Cols blocks.
func Multilook[T raster.Sample](r *raster.Raster[T], l Looks) (*raster.Raster[T], error) {
	w, h, err := l.outputSize(r.Width(), r.Height())
	if err != nil {
		return nil, err
	}

	if l.IsIdentity() {
		return r, nil
	}

	src := r.Data()
	width := r.Width()
	out := make([]T, w*h)

	var count T
	for i := 0; i < l.Rows*l.Cols; i++ {
		count++
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum T
			for dy := 0; dy < l.Rows; dy++ {
				row := src[(y*l.Rows+dy)*width:]
				for dx := 0; dx < l.Cols; dx++ {
					sum += row[x*l.Cols+dx]
				}
			}
			out[y*w+x] = sum / count
		}
	}

	return raster.New(w, h, out,
		raster.WithBounds(r.Bounds().Sub(r.Width(), r.Height(), w*l.Cols, h*l.Rows)),
		raster.WithCRS(r.CRS()))
}

// MultilookPair coarsens the interferogram of pair together with both intensities, the inputs
// coherence estimation needs.
func MultilookPair(pair *Pair, l Looks) (ifg *raster.Raster[complex64], refPower, secPower *raster.Raster[float32], err error) {
	ifg, err = Multilook(pair.Interferogram(), l)
	if err != nil {
		return nil, nil, nil, err
	}

	refPower, err = Multilook(Intensity(pair.Reference), l)
	if err != nil {
		return nil, nil, nil, err
	}

	secPower, err = Multilook(Intensity(pair.Secondary), l)
	if err != nil {
		return nil, nil, nil, err
	}

	return ifg, refPower, secPower, nil
}
