package registry_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-insar/internal/config"
	"github.com/askiada/go-insar/internal/db"
	"github.com/askiada/go-insar/internal/registry"
	"github.com/askiada/go-insar/internal/store"
	"github.com/askiada/go-insar/internal/synthetic"
	"github.com/askiada/go-insar/pkg/collaborator"
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/pipeline"
	"github.com/askiada/go-insar/pkg/raster"
)

type renderer struct{}

func (renderer) Render(_ context.Context, layer collaborator.Layer, _ []raster.LatLon) (string, error) {
	return "/plots/" + layer.Name + ".png", nil
}

func testConfig() config.ProcessingConfig {
	cfg := config.Default()
	cfg.Bursts = []string{"021_043788_IW1"}
	cfg.DetrendWavelength = 0

	return cfg.WithDerivedDirs()
}

// syntheticRun gives every run its own store and synthetic collaborators.
func syntheticRun(extra ...pipeline.Option) registry.Option {
	return registry.WithRunOptions(func(uuid.UUID) []pipeline.Option {
		st := store.NewMemoryStore()
		gen := synthetic.New(st)

		return append([]pipeline.Option{
			pipeline.WithStore(st),
			pipeline.WithCollaborators(pipeline.Collaborators{
				Scenes:   gen,
				DEM:      gen,
				Landmask: gen,
				Stacker:  gen,
				Aligner:  gen,
				Geocoder: gen,
				Renderer: renderer{},
			}),
		}, extra...)
	})
}

// blockingTable parks download_dem until its context is cancelled.
func blockingTable(started chan<- struct{}) pipeline.Table {
	var once sync.Once

	return pipeline.DefaultTable().With(pipeline.DownloadDEM, func(ctx context.Context, _ *pipeline.StepContext) pipeline.Outcome {
		once.Do(func() { close(started) })
		<-ctx.Done()

		return pipeline.Failed(ctx.Err())
	})
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	return ctx
}

func TestConcurrentRuns(t *testing.T) {
	t.Parallel()

	sup := registry.New(registry.WithBuffer(4096), syntheticRun())
	defer sup.Close()

	events, unsubscribe := sup.Subscribe()
	defer unsubscribe()

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		id, err := sup.Start(testConfig())
		require.NoError(t, err)
		ids[i] = id
	}

	assert.ElementsMatch(t, ids, sup.Runs())

	ctx := waitCtx(t)

	for _, id := range ids {
		report, err := sup.Wait(ctx, id)
		require.NoError(t, err)
		require.NoError(t, report.Err)
		assert.Equal(t, db.RunCompleted, report.Status)
		assert.Len(t, report.Results, len(pipeline.AllSteps()))

		status, err := sup.Status(id)
		require.NoError(t, err)
		assert.Equal(t, len(pipeline.AllSteps()), status.CompletedSteps)

		logs, err := sup.Logs(id)
		require.NoError(t, err)
		assert.Contains(t, logs, "Starting InSAR Processing")
		assert.Contains(t, logs, "Processing Complete")

		summary, err := sup.Summary(id)
		require.NoError(t, err)
		assert.NotNil(t, summary.LOS)
	}

	finished := map[uuid.UUID]bool{}
	progress := map[uuid.UUID]int{}

	for len(finished) < len(ids) {
		select {
		case ev := <-events:
			switch ev.Kind {
			case registry.EventFinished:
				assert.Equal(t, db.RunCompleted, ev.Status)
				assert.Empty(t, ev.Error)
				finished[ev.RunID] = true
			case registry.EventProgress:
				assert.False(t, finished[ev.RunID], "progress after the finished event")
				progress[ev.RunID]++
			}
		case <-ctx.Done():
			t.Fatal("finished events not received")
		}
	}

	for _, id := range ids {
		assert.GreaterOrEqual(t, progress[id], 2*len(pipeline.AllSteps()))
	}
}

func TestCancelRun(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	sup := registry.New(syntheticRun(pipeline.WithTable(blockingTable(started))))
	defer sup.Close()

	id, err := sup.Start(testConfig())
	require.NoError(t, err)

	ctx := waitCtx(t)

	select {
	case <-started:
	case <-ctx.Done():
		t.Fatal("blocking step never started")
	}

	status, err := sup.Status(id)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusRunning, status.Results[pipeline.DownloadDEM].Status)

	require.NoError(t, sup.Cancel(id))

	report, err := sup.Wait(ctx, id)
	require.NoError(t, err)
	assert.ErrorIs(t, report.Err, insarerr.ErrCancelled)
	assert.Equal(t, db.RunCancelled, report.Status)
	assert.Equal(t, pipeline.StatusCancelled, report.Results[pipeline.DownloadDEM].Status)
	assert.NotContains(t, report.Results, pipeline.DownloadLandmask)

	logs, err := sup.Logs(id)
	require.NoError(t, err)
	assert.Contains(t, logs, "Processing cancelled by user")
}

func TestUnknownRun(t *testing.T) {
	t.Parallel()

	sup := registry.New()
	defer sup.Close()

	id := uuid.New()

	assert.ErrorIs(t, sup.Cancel(id), registry.ErrRunNotFound)

	_, err := sup.Status(id)
	assert.ErrorIs(t, err, registry.ErrRunNotFound)

	_, err = sup.Logs(id)
	assert.ErrorIs(t, err, registry.ErrRunNotFound)

	_, err = sup.Wait(context.Background(), id)
	assert.ErrorIs(t, err, registry.ErrRunNotFound)

	_, err = sup.Summary(id)
	assert.ErrorIs(t, err, registry.ErrRunNotFound)
}

func TestStartValidates(t *testing.T) {
	t.Parallel()

	sup := registry.New(syntheticRun())
	defer sup.Close()

	_, err := sup.Start(testConfig(), pipeline.Step("unknown"))
	assert.ErrorIs(t, err, pipeline.ErrUnknownStep)

	cfg := testConfig()
	cfg.Resolution = -1
	_, err = sup.Start(cfg)
	assert.ErrorIs(t, err, insarerr.ErrConfig)

	assert.Empty(t, sup.Runs())
}

func TestRunSubset(t *testing.T) {
	t.Parallel()

	sup := registry.New(syntheticRun())
	defer sup.Close()

	id, err := sup.Start(testConfig(), pipeline.DownloadDEM, pipeline.DownloadData)
	require.NoError(t, err)

	report, err := sup.Wait(waitCtx(t), id)
	require.NoError(t, err)
	require.NoError(t, report.Err)

	status, err := sup.Status(id)
	require.NoError(t, err)
	assert.Equal(t, []pipeline.Step{pipeline.DownloadData, pipeline.DownloadDEM}, status.Order)
}

func TestHistory(t *testing.T) {
	t.Parallel()

	d, err := db.Open(filepath.Join(t.TempDir(), "insar.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	sup := registry.New(registry.WithHistory(d), syntheticRun())
	defer sup.Close()

	id, err := sup.Start(testConfig())
	require.NoError(t, err)

	_, err = sup.Wait(waitCtx(t), id)
	require.NoError(t, err)

	rec, err := d.LoadRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, db.RunCompleted, rec.Status)
	assert.Len(t, rec.Steps, len(pipeline.AllSteps()))
	assert.Equal(t, testConfig().Bursts, rec.Config.Bursts)
}

func TestCloseCancelsRuns(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	sup := registry.New(syntheticRun(pipeline.WithTable(blockingTable(started))))

	events, _ := sup.Subscribe()

	id, err := sup.Start(testConfig())
	require.NoError(t, err)

	ctx := waitCtx(t)

	select {
	case <-started:
	case <-ctx.Done():
		t.Fatal("blocking step never started")
	}

	sup.Close()

	report, err := sup.Wait(ctx, id)
	require.NoError(t, err)
	assert.ErrorIs(t, report.Err, insarerr.ErrCancelled)

	var last registry.Event
	for ev := range events {
		last = ev
	}

	assert.Equal(t, registry.EventFinished, last.Kind)
	assert.Equal(t, db.RunCancelled, last.Status)

	_, err = sup.Start(testConfig())
	assert.ErrorIs(t, err, registry.ErrClosed)

	late, _ := sup.Subscribe()
	_, open := <-late
	assert.False(t, open)
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()

	sup := registry.New(syntheticRun())
	defer sup.Close()

	events, unsubscribe := sup.Subscribe()
	unsubscribe()
	unsubscribe()

	_, open := <-events
	assert.False(t, open)
}
