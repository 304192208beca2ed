package raster

import (
	"context"

	"github.com/pkg/errors"

	"github.com/askiada/go-insar/pkg/insarerr"
)

// ErrNotFound is returned by a Store when no raster is stored under a path.
var ErrNotFound = errors.New("raster not found")

// Kind tags the sample type of a stored raster.
type Kind string

const (
	KindReal    Kind = "float32"
	KindComplex Kind = "complex64"
)

// Record is the format-neutral representation exchanged with a Store. Exactly one of Real or
// Complex is set, according to Kind.
type Record struct {
	Metadata Metadata
	Kind     Kind
	CRS      string
	Real     []float32
	Complex  []complex64
	Bounds   Bounds
	Width    int
	Height   int
}

// Store is the raster persistence collaborator. Implementations must round-trip bounds and sample
// values exactly; the file format is theirs to choose.
type Store interface {
	// Put stores rec under path, replacing any previous raster.
	Put(ctx context.Context, path string, rec *Record) error
	// Get returns the raster stored under path, or an error wrapping ErrNotFound.
	Get(ctx context.Context, path string) (*Record, error)
	// Exists reports whether a raster is stored under path.
	Exists(ctx context.Context, path string) (bool, error)
}

// Save persists r under path together with meta.
func Save[T Sample](ctx context.Context, store Store, r *Raster[T], path string, meta Metadata) error {
	rec := &Record{
		Kind:     KindOf[T](),
		Width:    r.width,
		Height:   r.height,
		Bounds:   r.bounds,
		CRS:      r.crs,
		Metadata: meta,
	}

	switch data := any(r.data).(type) {
	case []float32:
		rec.Real = data
	case []complex64:
		rec.Complex = data
	default:
		return insarerr.Configf("unsupported sample type %T", r.data)
	}

	err := store.Put(ctx, path, rec)
	if err != nil {
		return insarerr.ExternalIO(err, "unable to save raster "+path)
	}

	return nil
}

// Load reads the raster stored under path.
func Load[T Sample](ctx context.Context, store Store, path string) (*Raster[T], error) {
	r, _, err := LoadWithMetadata[T](ctx, store, path)

	return r, err
}

// LoadWithMetadata reads the raster stored under path and its metadata.
func LoadWithMetadata[T Sample](ctx context.Context, store Store, path string) (*Raster[T], Metadata, error) {
	rec, err := store.Get(ctx, path)
	if err != nil {
		return nil, nil, insarerr.ExternalIO(err, "unable to load raster "+path)
	}

	want := KindOf[T]()
	if rec.Kind != want {
		return nil, nil, insarerr.Configf("raster %s holds %s samples, want %s", path, rec.Kind, want)
	}

	var data []T

	switch want {
	case KindReal:
		data, _ = any(rec.Real).([]T)
	case KindComplex:
		data, _ = any(rec.Complex).([]T)
	}

	r, err := New(rec.Width, rec.Height, data, WithBounds(rec.Bounds), WithCRS(rec.CRS))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid raster %s", path)
	}

	return r, rec.Metadata, nil
}

// KindOf returns the storage tag for sample type T.
func KindOf[T Sample]() Kind {
	var zero T
	if _, ok := any(zero).(complex64); ok {
		return KindComplex
	}

	return KindReal
}
