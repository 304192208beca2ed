package interferogram

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/askiada/go-insar/internal/parallel"
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/raster"
)

// FilterParams configures the adaptive Goldstein phase filter.
type FilterParams struct {
	// PatchSize is the side of the square FFT patch. Zero disables filtering.
	PatchSize int `json:"patch_size" yaml:"patch_size"`
	// Alpha is the filter exponent in [0, 1]. It is scaled down by the patch coherence, so fully
	// coherent patches are left untouched.
	Alpha float64 `json:"alpha" yaml:"alpha"`
}

// Validate checks the patch size and exponent.
func (p FilterParams) Validate() error {
	if p.PatchSize == 0 {
		return nil
	}

	if p.PatchSize < 4 || p.PatchSize%2 != 0 {
		return insarerr.Configf("goldstein patch size must be an even number >= 4, got %d", p.PatchSize)
	}

	if p.Alpha < 0 || p.Alpha > 1 || math.IsNaN(p.Alpha) {
		return insarerr.Configf("goldstein alpha must be in [0, 1], got %g", p.Alpha)
	}

	return nil
}

// patch is the filtered output of one FFT patch, already weighted.
type patch struct {
	x0, y0 int
	vals   []complex128
}

// Goldstein filters the phase of ifg patch by patch in the frequency domain. Each patch spectrum
// is multiplied by its own smoothed magnitude raised to alpha·(1-c), c being the mean coherence of
// the patch. Patches overlap by half and are blended with triangular weights. The returned
// interferogram keeps the input amplitude.
func Goldstein(ifg *raster.Raster[complex64], coh *raster.Raster[float32], params FilterParams) (*raster.Raster[complex64], error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if !raster.SameShape(ifg, coh) {
		return nil, errors.Wrap(errShape, "goldstein inputs")
	}

	if params.PatchSize == 0 {
		return ifg, nil
	}

	width, height := ifg.Width(), ifg.Height()
	size := params.PatchSize
	step := size / 2

	weights := make([]float64, size)
	for i := range weights {
		weights[i] = float64(min(i+1, size-i)) / float64(step)
	}

	origins := func(n int) []int {
		var out []int
		for o := 0; ; o += step {
			out = append(out, o)
			if o+size >= n {
				return out
			}
		}
	}
	xs, ys := origins(width), origins(height)

	acc := make([]complex128, width*height)
	wsum := make([]float64, width*height)

	for _, y0 := range ys {
		row := make([]patch, len(xs))

		err := parallel.Rows(len(xs), func(start, end int) error {
			f := newPatchFilter(size)
			for i := start; i < end; i++ {
				row[i] = f.filter(ifg, coh, xs[i], y0, params.Alpha, weights)
			}

			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, p := range row {
			for i := 0; i < size && p.y0+i < height; i++ {
				for j := 0; j < size && p.x0+j < width; j++ {
					idx := (p.y0+i)*width + p.x0 + j
					acc[idx] += p.vals[i*size+j]
					wsum[idx] += weights[i] * weights[j]
				}
			}
		}
	}

	src := ifg.Data()
	out := make([]complex64, len(src))
	for i, z := range src {
		a := acc[i]
		if wsum[i] == 0 || a == 0 {
			out[i] = z
			continue
		}
		amp := cmplx.Abs(complex128(z))
		out[i] = complex64(complex(amp, 0) * a / complex(cmplx.Abs(a), 0))
	}

	return raster.WithData(ifg, out)
}

// patchFilter holds the FFT plan and scratch buffers of one worker.
type patchFilter struct {
	fft  *fourier.CmplxFFT
	grid []complex128
	in   []complex128
	out  []complex128
	mag  []float64
	size int
}

func newPatchFilter(size int) *patchFilter {
	return &patchFilter{
		fft:  fourier.NewCmplxFFT(size),
		grid: make([]complex128, size*size),
		in:   make([]complex128, size),
		out:  make([]complex128, size),
		mag:  make([]float64, size*size),
		size: size,
	}
}

func (f *patchFilter) filter(ifg *raster.Raster[complex64], coh *raster.Raster[float32], x0, y0 int, alpha float64, weights []float64) patch {
	size := f.size
	width, height := ifg.Width(), ifg.Height()

	var cohSum float64
	var cohN int

	for i := 0; i < size; i++ {
		y := raster.Reflect(y0+i, height)
		for j := 0; j < size; j++ {
			x := raster.Reflect(x0+j, width)
			z := complex128(ifg.At(x, y))
			if a := cmplx.Abs(z); a > 0 {
				z /= complex(a, 0)
			} else {
				z = 0
			}
			f.grid[i*size+j] = z

			if y0+i < height && x0+j < width {
				if c := float64(coh.At(x, y)); !math.IsNaN(c) {
					cohSum += c
					cohN++
				}
			}
		}
	}

	meanCoh := 0.0
	if cohN > 0 {
		meanCoh = cohSum / float64(cohN)
	}
	exponent := alpha * (1 - clip01(meanCoh))

	f.transform(false)

	if exponent > 0 {
		f.shape(exponent)
	}

	f.transform(true)

	vals := make([]complex128, size*size)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			vals[i*size+j] = f.grid[i*size+j] * complex(weights[i]*weights[j], 0)
		}
	}

	return patch{x0: x0, y0: y0, vals: vals}
}

// shape multiplies the spectrum by its 3x3 smoothed magnitude raised to exponent, normalised to a
// peak of 1.
func (f *patchFilter) shape(exponent float64) {
	size := f.size

	var peak float64
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			var s float64
			for di := -1; di <= 1; di++ {
				for dj := -1; dj <= 1; dj++ {
					ii := (i + di + size) % size
					jj := (j + dj + size) % size
					s += cmplx.Abs(f.grid[ii*size+jj])
				}
			}
			h := math.Pow(s/9, exponent)
			f.mag[i*size+j] = h
			if h > peak {
				peak = h
			}
		}
	}

	if peak == 0 {
		return
	}

	for i, h := range f.mag {
		f.grid[i] *= complex(h/peak, 0)
	}
}

// transform runs an in-place 2-D FFT of the patch grid, row pass then column pass.
func (f *patchFilter) transform(inverse bool) {
	size := f.size
	apply := f.fft.Coefficients
	if inverse {
		apply = f.fft.Sequence
	}

	for i := 0; i < size; i++ {
		copy(f.in, f.grid[i*size:(i+1)*size])
		apply(f.out, f.in)
		copy(f.grid[i*size:(i+1)*size], f.out)
	}

	for j := 0; j < size; j++ {
		for i := 0; i < size; i++ {
			f.in[i] = f.grid[i*size+j]
		}
		apply(f.out, f.in)
		for i := 0; i < size; i++ {
			f.grid[i*size+j] = f.out[i]
		}
	}
}
