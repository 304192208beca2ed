package db_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-insar/internal/config"
	"github.com/askiada/go-insar/internal/db"
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/pipeline"
	"github.com/askiada/go-insar/pkg/raster"
)

func openDB(t *testing.T) *db.DB {
	t.Helper()

	d, err := db.Open(filepath.Join(t.TempDir(), "insar.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	return d
}

func TestMigrations(t *testing.T) {
	t.Parallel()

	d := openDB(t)

	version, dirty, err := d.MigrateVersion()
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
	assert.False(t, dirty)

	// Migrating again is a no-op.
	require.NoError(t, d.MigrateUp())
}

func TestRasterStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openDB(t).Rasters()
	bounds := raster.Bounds{West: 36.1, East: 38.2, South: 36.9, North: 38.05}

	nan := float32(math.NaN())
	los, err := raster.New(3, 2, []float32{1, -2.5, nan, 4, 5e-7, 6}, raster.WithBounds(bounds), raster.WithCRS("EPSG:4326"))
	require.NoError(t, err)
	require.NoError(t, raster.Save(ctx, store, los, "/work/los", raster.Metadata{"units": "mm"}))

	got, meta, err := raster.LoadWithMetadata[float32](ctx, store, "/work/los")
	require.NoError(t, err)
	assert.Equal(t, bounds, got.Bounds())
	assert.Equal(t, "EPSG:4326", got.CRS())
	assert.Equal(t, "mm", meta["units"])
	assert.True(t, math.IsNaN(float64(got.At(2, 0))))
	assert.Equal(t, los.At(1, 1), got.At(1, 1))

	cpx, err := raster.New(2, 1, []complex64{complex(1, -1), complex(0.25, 3)})
	require.NoError(t, err)
	require.NoError(t, raster.Save(ctx, store, cpx, "/work/ifg", nil))

	gotCpx, err := raster.Load[complex64](ctx, store, "/work/ifg")
	require.NoError(t, err)
	assert.Equal(t, cpx.Data(), gotCpx.Data())

	// Saving again replaces the raster.
	require.NoError(t, raster.Save(ctx, store, cpx, "/work/los", nil))
	_, err = raster.Load[float32](ctx, store, "/work/los")
	assert.ErrorIs(t, err, insarerr.ErrConfig)

	ok, err := store.Exists(ctx, "/work/ifg")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = store.Get(ctx, "/work/missing")
	assert.ErrorIs(t, err, raster.ErrNotFound)
}

func TestRunHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := openDB(t)

	start := time.Date(2023, 2, 6, 1, 17, 0, 0, time.UTC)
	snap := pipeline.Snapshot{
		Order: []pipeline.Step{pipeline.DownloadData, pipeline.DownloadDEM},
		Results: map[pipeline.Step]pipeline.Result{
			pipeline.DownloadData: {
				Step: pipeline.DownloadData, Status: pipeline.StatusCompleted,
				StartTime: start, EndTime: start.Add(time.Second),
				Artifacts: []string{"/data/a", "/data/b"}, Metadata: raster.Metadata{"scenes": "2"},
			},
			pipeline.DownloadDEM: {
				Step: pipeline.DownloadDEM, Status: pipeline.StatusFailed,
				StartTime: start.Add(time.Second), EndTime: start.Add(2 * time.Second), Error: "timeout",
			},
		},
		TotalSteps: 10,
	}

	cfg := config.Default().WithDerivedDirs()
	cfg.Bursts = []string{"021_043788_IW1"}

	id := uuid.New()
	runErr := &pipeline.StepError{Step: pipeline.DownloadDEM, Err: insarerr.ExternalIOf("timeout")}
	require.NoError(t, d.SaveRun(ctx, id, cfg, start, snap, runErr))

	rec, err := d.LoadRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, db.RunFailed, rec.Status)
	assert.Equal(t, 10, rec.TotalSteps)
	assert.Equal(t, cfg, rec.Config)
	assert.True(t, start.Equal(rec.StartedAt))
	require.Len(t, rec.Steps, 2)
	assert.Equal(t, pipeline.DownloadData, rec.Steps[0].Step)
	assert.Equal(t, []string{"/data/a", "/data/b"}, rec.Steps[0].Artifacts)
	assert.Equal(t, "2", rec.Steps[0].Metadata["scenes"])
	assert.True(t, start.Add(time.Second).Equal(rec.Steps[0].EndTime))
	assert.Equal(t, "timeout", rec.Steps[1].Error)

	// Saving again replaces the previous record.
	require.NoError(t, d.SaveRun(ctx, id, cfg, start, snap, nil))
	rec, err = d.LoadRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, db.RunCompleted, rec.Status)
	assert.Len(t, rec.Steps, 2)

	ids, err := d.RecentRuns(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, ids)

	_, err = d.LoadRun(ctx, uuid.New())
	assert.ErrorIs(t, err, db.ErrRunNotFound)
}

func TestRunStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, db.RunCompleted, db.RunStatus(nil))
	assert.Equal(t, db.RunCancelled, db.RunStatus(errors.Wrap(insarerr.ErrCancelled, "stopped")))
	assert.Equal(t, db.RunFailed, db.RunStatus(errors.New("boom")))
}
