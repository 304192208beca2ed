// Package raster provides the two-dimensional sample grids exchanged between processing stages.
//
// A Raster is immutable once produced: stages allocate a new Raster for every output and never
// write into a Raster they did not create. Samples are stored row-major in a contiguous buffer.
package raster

import (
	"github.com/pkg/errors"

	"github.com/askiada/go-insar/pkg/insarerr"
)

// Sample is the set of sample types a Raster can hold.
type Sample interface {
	~complex64 | ~float32
}

// Raster is a georeferenced width x height grid of samples.
type Raster[T Sample] struct {
	data   []T
	bounds Bounds
	crs    string
	width  int
	height int
}

// Option configures a Raster at construction.
type Option func(*options)

type options struct {
	bounds Bounds
	crs    string
}

// WithBounds sets the geographic extent of the raster.
func WithBounds(b Bounds) Option {
	return func(o *options) {
		o.bounds = b
	}
}

// WithCRS sets the coordinate reference identifier, for example "EPSG:4326".
func WithCRS(crs string) Option {
	return func(o *options) {
		o.crs = crs
	}
}

// New creates a raster that takes ownership of data. The caller must not modify data afterwards.
func New[T Sample](width, height int, data []T, opts ...Option) (*Raster[T], error) {
	if width <= 0 || height <= 0 {
		return nil, insarerr.Configf("raster size must be positive, got %dx%d", width, height)
	}

	if len(data) != width*height {
		return nil, insarerr.Configf("raster data has %d samples, want %d", len(data), width*height)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	return &Raster[T]{
		data:   data,
		width:  width,
		height: height,
		bounds: o.bounds,
		crs:    o.crs,
	}, nil
}

// Generate creates a raster whose samples are produced by fn(x, y).
func Generate[T Sample](width, height int, fn func(x, y int) T, opts ...Option) (*Raster[T], error) {
	if width <= 0 || height <= 0 {
		return nil, insarerr.Configf("raster size must be positive, got %dx%d", width, height)
	}

	data := make([]T, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			data[y*width+x] = fn(x, y)
		}
	}

	return New(width, height, data, opts...)
}

// Width returns the number of columns.
func (r *Raster[T]) Width() int { return r.width }

// Height returns the number of rows.
func (r *Raster[T]) Height() int { return r.height }

// Len returns the number of samples.
func (r *Raster[T]) Len() int { return len(r.data) }

// Bounds returns the geographic extent.
func (r *Raster[T]) Bounds() Bounds { return r.bounds }

// CRS returns the coordinate reference identifier, possibly empty.
func (r *Raster[T]) CRS() string { return r.crs }

// At returns the sample at column x, row y.
func (r *Raster[T]) At(x, y int) T {
	return r.data[y*r.width+x]
}

// Data exposes the row-major sample buffer. It must be treated as read-only.
func (r *Raster[T]) Data() []T {
	return r.data
}

// Row exposes row y of the sample buffer. It must be treated as read-only.
func (r *Raster[T]) Row(y int) []T {
	return r.data[y*r.width : (y+1)*r.width]
}

// Samples returns a copy of the sample buffer.
func (r *Raster[T]) Samples() []T {
	out := make([]T, len(r.data))
	copy(out, r.data)

	return out
}

// SameShape reports whether both rasters have identical dimensions.
func SameShape[A, B Sample](a *Raster[A], b *Raster[B]) bool {
	return a.width == b.width && a.height == b.height
}

// Crop returns the origin-aligned width x height sub-raster, with bounds shrunk proportionally.
func (r *Raster[T]) Crop(width, height int) (*Raster[T], error) {
	if width <= 0 || height <= 0 {
		return nil, insarerr.Configf("crop size must be positive, got %dx%d", width, height)
	}

	if width > r.width || height > r.height {
		return nil, insarerr.Configf("crop %dx%d exceeds raster %dx%d", width, height, r.width, r.height)
	}

	if width == r.width && height == r.height {
		return r, nil
	}

	data := make([]T, width*height)
	for y := 0; y < height; y++ {
		copy(data[y*width:(y+1)*width], r.data[y*r.width:y*r.width+width])
	}

	return New(width, height, data,
		WithBounds(r.bounds.Sub(r.width, r.height, width, height)),
		WithCRS(r.crs))
}

// Map applies fn to every sample and returns a new raster of the same shape and georeference.
func Map[T, U Sample](r *Raster[T], fn func(T) U) *Raster[U] {
	out := make([]U, len(r.data))
	for i, v := range r.data {
		out[i] = fn(v)
	}

	return &Raster[U]{data: out, width: r.width, height: r.height, bounds: r.bounds, crs: r.crs}
}

// Zip combines two rasters of the same shape sample by sample.
func Zip[A, B, U Sample](a *Raster[A], b *Raster[B], fn func(A, B) U) (*Raster[U], error) {
	if !SameShape(a, b) {
		return nil, errors.Wrapf(insarerr.ErrConfig, "shape mismatch %dx%d vs %dx%d", a.width, a.height, b.width, b.height)
	}

	out := make([]U, len(a.data))
	for i := range a.data {
		out[i] = fn(a.data[i], b.data[i])
	}

	return &Raster[U]{data: out, width: a.width, height: a.height, bounds: a.bounds, crs: a.crs}, nil
}

// WithData returns a raster sharing the georeference and shape of like, holding data.
func WithData[T, U Sample](like *Raster[T], data []U) (*Raster[U], error) {
	return New(like.width, like.height, data, WithBounds(like.bounds), WithCRS(like.crs))
}
