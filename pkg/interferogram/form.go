package interferogram

import (
	"github.com/pkg/errors"

	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/raster"
)

var errShape = errors.Wrap(insarerr.ErrConfig, "mismatched raster shapes")

// Pair is a coregistered reference/secondary acquisition pair, cropped to their common extent.
type Pair struct {
	Reference *raster.Raster[complex64]
	Secondary *raster.Raster[complex64]
}

// Overlap crops ref and sec to their minimum common width and height, aligned at the origin.
func Overlap(ref, sec *raster.Raster[complex64]) (*Pair, error) {
	if ref == nil || sec == nil {
		return nil, insarerr.Configf("reference and secondary rasters must be set")
	}

	width := min(ref.Width(), sec.Width())
	height := min(ref.Height(), sec.Height())

	if width <= 0 || height <= 0 {
		return nil, insarerr.Configf("zero-size overlap between %dx%d and %dx%d",
			ref.Width(), ref.Height(), sec.Width(), sec.Height())
	}

	r, err := ref.Crop(width, height)
	if err != nil {
		return nil, errors.Wrap(err, "unable to crop reference")
	}

	s, err := sec.Crop(width, height)
	if err != nil {
		return nil, errors.Wrap(err, "unable to crop secondary")
	}

	return &Pair{Reference: r, Secondary: s}, nil
}

// Form returns the interferogram ref · conj(sec) over the common extent of the pair.
func Form(ref, sec *raster.Raster[complex64]) (*raster.Raster[complex64], error) {
	pair, err := Overlap(ref, sec)
	if err != nil {
		return nil, err
	}

	return pair.Interferogram(), nil
}

// Interferogram multiplies the reference by the complex conjugate of the secondary.
func (p *Pair) Interferogram() *raster.Raster[complex64] {
	ifg, _ := raster.Zip(p.Reference, p.Secondary, func(r, s complex64) complex64 {
		return r * complex(real(s), -imag(s))
	})

	return ifg
}
