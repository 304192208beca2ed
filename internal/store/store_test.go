package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-insar/internal/store"
	"github.com/askiada/go-insar/pkg/raster"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore()
	bounds := raster.Bounds{West: 36.5, East: 38.5, South: 36.8, North: 38.2}

	r, err := raster.New(3, 2, []complex64{1, 1i, -1, complex(0.5, -0.25), 0, 2}, raster.WithBounds(bounds), raster.WithCRS("EPSG:4326"))
	require.NoError(t, err)

	err = raster.Save(ctx, s, r, "work/slc_ref", raster.Metadata{"scene": "ref"})
	require.NoError(t, err)

	got, meta, err := raster.LoadWithMetadata[complex64](ctx, s, "work/slc_ref")
	require.NoError(t, err)
	assert.Equal(t, r.Samples(), got.Samples())
	assert.Equal(t, bounds, got.Bounds())
	assert.Equal(t, "EPSG:4326", got.CRS())
	assert.Equal(t, "ref", meta["scene"])

	ok, err := s.Exists(ctx, "work/slc_ref")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"work/slc_ref"}, s.List("work/"))
}

func TestMemoryStoreIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore()

	rec := &raster.Record{Kind: raster.KindReal, Width: 2, Height: 1, Real: []float32{1, 2}}
	require.NoError(t, s.Put(ctx, "a", rec))

	rec.Real[0] = 42

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, float32(1), got.Real[0])

	got.Real[1] = 42
	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, float32(2), again.Real[1])
}

func TestMemoryStoreNotFound(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, raster.ErrNotFound)

	s.Delete("missing")
	_, err = raster.Load[float32](context.Background(), s, "missing")
	assert.ErrorIs(t, err, raster.ErrNotFound)
}

func TestMemoryStoreKindMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore()
	r, err := raster.New(1, 1, []float32{3})
	require.NoError(t, err)
	require.NoError(t, raster.Save(ctx, s, r, "phase", nil))

	_, err = raster.Load[complex64](ctx, s, "phase")
	assert.Error(t, err)
}
