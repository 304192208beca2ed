package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-insar/internal/config"
	"github.com/askiada/go-insar/internal/store"
	"github.com/askiada/go-insar/internal/synthetic"
	"github.com/askiada/go-insar/pkg/collaborator"
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/pipeline"
	"github.com/askiada/go-insar/pkg/pipeline/measure"
	"github.com/askiada/go-insar/pkg/raster"
)

type renderer struct {
	err error
}

func (r renderer) Render(_ context.Context, layer collaborator.Layer, _ []raster.LatLon) (string, error) {
	if r.err != nil {
		return "", r.err
	}

	return "/plots/" + layer.Name + ".png", nil
}

type event struct {
	message  string
	step     pipeline.Step
	progress float64
	log      bool
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) OnProgress(step pipeline.Step, progress float64, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{step: step, progress: progress, message: message})
}

func (r *recorder) OnLog(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{message: message, log: true})
}

func (r *recorder) progress(step pipeline.Step) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []float64
	for _, e := range r.events {
		if !e.log && e.step == step {
			out = append(out, e.progress)
		}
	}

	return out
}

func (r *recorder) count(message string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.events {
		if e.log && e.message == message {
			n++
		}
	}

	return n
}

func testConfig() config.ProcessingConfig {
	cfg := config.Default()
	cfg.Bursts = []string{"021_043788_IW1"}
	cfg.DetrendWavelength = 0
	cfg.Epicenters = []raster.LatLon{{Lat: 37.5, Lon: 37.2}}

	return cfg.WithDerivedDirs()
}

func newPipeline(t *testing.T, cfg config.ProcessingConfig, opts ...pipeline.Option) (*pipeline.Pipeline, *store.MemoryStore, *synthetic.Generator) {
	t.Helper()

	st := store.NewMemoryStore()
	gen := synthetic.New(st)

	base := []pipeline.Option{
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
	}

	p, err := pipeline.New(cfg, append(base, opts...)...)
	require.NoError(t, err)

	return p, st, gen
}

func TestFullRun(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := measure.NewDefaultMeasure()
	p, st, gen := newPipeline(t, testConfig(), pipeline.WithObserver(rec), pipeline.WithHooks(measure.PipelineMeasure(m)))

	results, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, len(pipeline.AllSteps()))

	for _, step := range pipeline.AllSteps() {
		res := results[step]
		assert.Equal(t, pipeline.StatusCompleted, res.Status, "%s: %s", step, res.Error)
		assert.False(t, res.EndTime.Before(res.StartTime))

		for _, artifact := range res.Artifacts {
			if step == pipeline.GenerateVisualizations {
				continue
			}
			ok, err := st.Exists(context.Background(), artifact)
			require.NoError(t, err)
			assert.True(t, ok, artifact)
		}
	}

	assert.Equal(t, "2", results[pipeline.DownloadData].Metadata["scenes"])
	assert.Equal(t, "mm", results[pipeline.ComputeDisplacement].Metadata["units"])

	los, meta, err := raster.LoadWithMetadata[float32](context.Background(), st, p.Config().WorkDir+"/los_displacement")
	require.NoError(t, err)
	assert.Equal(t, "mm", meta["units"])
	assert.Contains(t, meta, "min")
	assert.Contains(t, meta, "max")

	// The bowl centre subsided relative to the north-east corner.
	cx, cy := los.Width()/2, los.Height()/2
	assert.InDelta(t, gen.Subsidence, float64(los.At(cx, cy)-los.At(los.Width()-1, 0)), 3)

	// Water is undefined.
	assert.True(t, isNaN(los.At(0, los.Height()-1)))

	sum := p.Summary()
	require.NotNil(t, sum.LOS)
	require.NotNil(t, sum.Coherence)
	assert.Greater(t, sum.Coherence.Mean, 0.5)
	assert.Positive(t, sum.UndefinedFraction)

	status := p.Status()
	assert.Equal(t, len(pipeline.AllSteps()), status.CompletedSteps)
	assert.Equal(t, pipeline.AllSteps(), status.Order)
	assert.NotNil(t, m.GetMetric(string(pipeline.PhaseUnwrapping)))

	for _, step := range pipeline.AllSteps() {
		got := rec.progress(step)
		require.NotEmpty(t, got, step)
		assert.Equal(t, 0.0, got[0])
		assert.Equal(t, 100.0, got[len(got)-1])
		assert.IsNonDecreasing(t, got)
	}
}

func isNaN(v float32) bool { return v != v }

func TestCancelAfterSecondStep(t *testing.T) {
	t.Parallel()

	var p *pipeline.Pipeline
	obs := pipeline.ObserverFuncs{Progress: func(step pipeline.Step, progress float64, _ string) {
		if step == pipeline.DownloadDEM && progress == 100 {
			p.Cancel()
		}
	}}

	p, _, _ = newPipeline(t, testConfig(), pipeline.WithObserver(obs))

	results, err := p.Run(context.Background())
	require.ErrorIs(t, err, insarerr.ErrCancelled)
	assert.NotErrorIs(t, err, pipeline.ErrStepFailed)

	status := p.Status()
	assert.True(t, status.Cancelled)
	assert.Equal(t, 2, status.CompletedSteps)
	assert.Len(t, results, 2)
	assert.Equal(t, []pipeline.Step{pipeline.DownloadData, pipeline.DownloadDEM}, status.Order)
	assert.NotContains(t, results, pipeline.DownloadLandmask)
}

func TestCancelDuringStepLetsItFinish(t *testing.T) {
	t.Parallel()

	var p *pipeline.Pipeline
	table := pipeline.DefaultTable().With(pipeline.DownloadLandmask, func(ctx context.Context, sc *pipeline.StepContext) pipeline.Outcome {
		p.Cancel()
		return pipeline.Completed(nil, nil)
	})

	p, _, _ = newPipeline(t, testConfig(), pipeline.WithTable(table))

	results, err := p.Run(context.Background())
	require.ErrorIs(t, err, insarerr.ErrCancelled)
	assert.Len(t, results, 3)
	assert.Equal(t, pipeline.StatusCompleted, results[pipeline.DownloadLandmask].Status)
	assert.Equal(t, 3, p.Status().CompletedSteps)
}

func TestCancelInterruptsBlockedCollaborator(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	table := pipeline.DefaultTable().With(pipeline.DownloadData, func(ctx context.Context, _ *pipeline.StepContext) pipeline.Outcome {
		close(started)
		<-ctx.Done()
		return pipeline.Failed(insarerr.ExternalIO(ctx.Err(), "download interrupted"))
	})

	p, _, _ := newPipeline(t, testConfig(), pipeline.WithTable(table))

	go func() {
		<-started
		p.Cancel()
		p.Cancel()
	}()

	results, err := p.Run(context.Background())
	require.ErrorIs(t, err, insarerr.ErrCancelled)
	require.Len(t, results, 1)
	assert.Equal(t, pipeline.StatusCancelled, results[pipeline.DownloadData].Status)
	assert.Zero(t, p.Status().FailedSteps)
}

func TestVisualizationFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	gen := synthetic.New(st)
	p, err := pipeline.New(testConfig(), pipeline.WithStore(st), pipeline.WithCollaborators(pipeline.Collaborators{
		Scenes: gen, DEM: gen, Landmask: gen, Stacker: gen, Aligner: gen, Geocoder: gen,
		Renderer: renderer{err: errors.New("no display")},
	}))
	require.NoError(t, err)

	results, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, pipeline.StatusFailed, results[pipeline.GenerateVisualizations].Status)
	assert.Contains(t, results[pipeline.GenerateVisualizations].Error, "plots failed")
	assert.Empty(t, results[pipeline.GenerateVisualizations].Artifacts)

	for _, step := range pipeline.AllSteps()[:9] {
		assert.Equal(t, pipeline.StatusCompleted, results[step].Status, step)
	}

	status := p.Status()
	assert.Equal(t, 9, status.CompletedSteps)
	assert.Equal(t, 1, status.FailedSteps)
}

func TestCriticalFailureAborts(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	cfg := testConfig()
	cfg.Bursts = []string{" "}
	p, _, _ := newPipeline(t, cfg, pipeline.WithObserver(rec))

	results, err := p.Run(context.Background())
	require.ErrorIs(t, err, pipeline.ErrStepFailed)
	assert.ErrorIs(t, err, insarerr.ErrConfig)

	var stepErr *pipeline.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, pipeline.DownloadData, stepErr.Step)

	require.Len(t, results, 1)
	assert.Contains(t, results[pipeline.DownloadData].Error, "no burst IDs provided")
	assert.Equal(t, []float64{0, -1}, rec.progress(pipeline.DownloadData))
}

func TestMissingStateFailsWithConfigError(t *testing.T) {
	t.Parallel()

	p, _, _ := newPipeline(t, testConfig())

	results, err := p.Run(context.Background(), pipeline.PhaseUnwrapping)
	require.ErrorIs(t, err, insarerr.ErrConfig)
	assert.Contains(t, results[pipeline.PhaseUnwrapping].Error, "interferogram not computed")
}

func TestStepPanicIsRecovered(t *testing.T) {
	t.Parallel()

	table := pipeline.DefaultTable().With(pipeline.DownloadDEM, func(context.Context, *pipeline.StepContext) pipeline.Outcome {
		panic("boom")
	})
	p, _, _ := newPipeline(t, testConfig(), pipeline.WithTable(table))

	results, err := p.Run(context.Background(), pipeline.DownloadDEM, pipeline.DownloadLandmask)
	require.ErrorIs(t, err, insarerr.ErrCompute)
	assert.Equal(t, pipeline.StatusFailed, results[pipeline.DownloadDEM].Status)
	assert.Contains(t, results[pipeline.DownloadDEM].Error, "boom")
	assert.NotContains(t, results, pipeline.DownloadLandmask)
}

func TestObserverPanicIsIsolated(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	bad := pipeline.ObserverFuncs{
		Progress: func(pipeline.Step, float64, string) { panic("progress") },
		Log:      func(string) { panic("log") },
	}
	p, _, _ := newPipeline(t, testConfig(), pipeline.WithObserver(bad), pipeline.WithObserver(rec))

	_, err := p.Run(context.Background(), pipeline.DownloadDEM)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 30, 100}, rec.progress(pipeline.DownloadDEM))
}

func TestStatusIsASnapshot(t *testing.T) {
	t.Parallel()

	var (
		p      *pipeline.Pipeline
		during pipeline.Snapshot
	)

	table := pipeline.DefaultTable().With(pipeline.DownloadLandmask, func(context.Context, *pipeline.StepContext) pipeline.Outcome {
		during = p.Status()
		return pipeline.Completed([]string{"landmask"}, raster.Metadata{"width": "1"})
	})
	p, _, _ = newPipeline(t, testConfig(), pipeline.WithTable(table))

	_, err := p.Run(context.Background(), pipeline.DownloadLandmask, pipeline.DownloadDEM)
	require.NoError(t, err)

	assert.Equal(t, 2, during.TotalSteps)
	assert.Equal(t, 1, during.CompletedSteps)
	assert.Equal(t, pipeline.StatusRunning, during.Results[pipeline.DownloadLandmask].Status)

	before := p.Status()
	before.Results[pipeline.DownloadLandmask].Metadata["width"] = "2"
	before.Results[pipeline.DownloadLandmask].Artifacts[0] = "changed"

	after := p.Status()
	assert.Equal(t, "1", after.Results[pipeline.DownloadLandmask].Metadata["width"])

	want := before
	want.Results = map[pipeline.Step]pipeline.Result{}
	for step, res := range before.Results {
		if step == pipeline.DownloadLandmask {
			res.Metadata = raster.Metadata{"width": "1"}
			res.Artifacts = []string{"landmask"}
		}
		want.Results[step] = res
	}

	if diff := cmp.Diff(want, after); diff != "" {
		t.Errorf("status changed (-want +got):\n%s", diff)
	}
}

func TestRunOnce(t *testing.T) {
	t.Parallel()

	p, _, _ := newPipeline(t, testConfig())

	_, err := p.Run(context.Background(), pipeline.DownloadDEM)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), pipeline.DownloadDEM)
	require.ErrorIs(t, err, pipeline.ErrAlreadyRunning)

	p.Cancel()
	assert.False(t, p.Status().Cancelled)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.CoherenceWindow = 4
	_, err := pipeline.New(cfg)
	require.ErrorIs(t, err, insarerr.ErrConfig)

	table := pipeline.DefaultTable()
	delete(table, pipeline.PhaseUnwrapping)
	_, err = pipeline.New(testConfig(), pipeline.WithTable(table))
	require.ErrorIs(t, err, pipeline.ErrMissingStep)

	_, err = pipeline.New(testConfig(), pipeline.WithTable(pipeline.DefaultTable().With("reticulate_splines", nil)))
	require.ErrorIs(t, err, pipeline.ErrUnknownStep)
}

func TestSummaryDuringRun(t *testing.T) {
	t.Parallel()

	p, _, _ := newPipeline(t, testConfig())

	done := make(chan struct{})
	polled := make(chan int)

	go func() {
		n := 0
		for {
			sum := p.Summary()
			assert.Equal(t, testConfig().Resolution, sum.Resolution)
			_ = p.Status()
			n++

			select {
			case <-done:
				polled <- n
				return
			default:
			}
		}
	}()

	_, err := p.Run(context.Background())
	close(done)
	require.NoError(t, err)
	assert.Positive(t, <-polled)

	sum := p.Summary()
	require.NotNil(t, sum.LOS)
	require.NotNil(t, sum.Coherence)
	assert.False(t, sum.ProcessedAt.IsZero())

	// The summary is copied out.
	sum.LOS.Min = 1e9
	assert.NotEqual(t, 1e9, p.Summary().LOS.Min)
}

func TestSummaryBeforeRun(t *testing.T) {
	t.Parallel()

	p, _, _ := newPipeline(t, testConfig())

	sum := p.Summary()
	assert.Nil(t, sum.LOS)
	assert.Equal(t, testConfig().Resolution, sum.Resolution)
}

func TestConfigIsIsolated(t *testing.T) {
	t.Parallel()

	heading := -10.0
	cfg := testConfig()
	cfg.AOI = &raster.Bounds{West: 36, East: 38, South: 36.5, North: 38}
	cfg.Heading = &heading

	p, _, _ := newPipeline(t, cfg)

	cfg.AOI.West = 99
	cfg.Bursts[0] = "tampered"
	cfg.Epicenters[0].Lat = 0
	heading = 5

	got := p.Config()
	assert.Equal(t, 36.0, got.AOI.West)
	assert.Equal(t, []string{"021_043788_IW1"}, got.Bursts)
	assert.Equal(t, 37.5, got.Epicenters[0].Lat)
	assert.Equal(t, -10.0, got.HeadingDegrees())

	got.AOI.East = 0
	got.Bursts[0] = "changed"
	assert.Equal(t, 38.0, p.Config().AOI.East)
	assert.Equal(t, "021_043788_IW1", p.Config().Bursts[0])
}

func TestCancelIsReportedByTheRun(t *testing.T) {
	t.Parallel()

	const message = "Processing cancelled by user"

	started := make(chan struct{})
	release := make(chan struct{})
	table := pipeline.DefaultTable().With(pipeline.DownloadDEM, func(context.Context, *pipeline.StepContext) pipeline.Outcome {
		close(started)
		<-release
		return pipeline.Completed(nil, nil)
	})

	rec := &recorder{}
	p, _, _ := newPipeline(t, testConfig(), pipeline.WithTable(table), pipeline.WithObserver(rec))

	errs := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background())
		errs <- err
	}()

	<-started
	p.Cancel()
	p.Cancel()
	assert.Zero(t, rec.count(message), "observers must not be called from the cancelling goroutine")

	close(release)
	require.ErrorIs(t, <-errs, insarerr.ErrCancelled)
	assert.Equal(t, 1, rec.count(message))
	assert.Equal(t, 2, p.Status().CompletedSteps)
}

type demSource struct {
	err error
}

func (d demSource) DEM(context.Context, collaborator.GridRequest) (*raster.Raster[float32], error) {
	return nil, d.err
}

func TestCollaboratorFailureIsExternal(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name string
		err  error
		want insarerr.Kind
	}{
		{name: "plain", err: errors.New("connection reset"), want: insarerr.KindExternalIO},
		{name: "classified", err: insarerr.Configf("bad bounds"), want: insarerr.KindConfig},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			st := store.NewMemoryStore()
			p, err := pipeline.New(testConfig(),
				pipeline.WithStore(st),
				pipeline.WithCollaborators(pipeline.Collaborators{DEM: demSource{err: tc.err}}),
			)
			require.NoError(t, err)

			results, err := p.Run(context.Background(), pipeline.DownloadDEM)
			require.ErrorIs(t, err, pipeline.ErrStepFailed)
			require.ErrorIs(t, err, tc.err)
			assert.Equal(t, tc.want, insarerr.KindOf(err))
			assert.Equal(t, pipeline.StatusFailed, results[pipeline.DownloadDEM].Status)
			assert.Contains(t, results[pipeline.DownloadDEM].Error, "unable to download DEM")
		})
	}
}
