package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/askiada/go-insar/internal/config"
	"github.com/askiada/go-insar/internal/store"
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/pipeline/model"
	"github.com/askiada/go-insar/pkg/raster"
)

const banner = "============================================================"

// Pipeline runs the processing steps of one task. A Pipeline runs once.
type Pipeline struct {
	store         raster.Store
	state         *State
	table         Table
	cancelRun     context.CancelFunc
	results       map[Step]*Result
	collaborators Collaborators
	logger        zerolog.Logger
	observers     []Observer
	hooks         []model.PipelineOption
	order         []Step
	cfg           config.ProcessingConfig
	summary       Summary
	planned       int
	mu            sync.RWMutex
	started       atomic.Bool
	finished      atomic.Bool
	cancelled     atomic.Bool
}

// New creates a pipeline for cfg. The configuration is deep copied and never changed afterwards.
func New(cfg config.ProcessingConfig, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg = cfg.Clone()

	p := &Pipeline{
		cfg:     cfg,
		summary: Summary{Resolution: cfg.Resolution},
		table:   DefaultTable(),
		state:   &State{},
		results: make(map[Step]*Result),
		logger:  zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.store == nil {
		p.store = store.NewMemoryStore()
	}

	if err := p.table.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid transition table")
	}

	return p, nil
}

// Config returns a copy of the configuration of the run.
func (p *Pipeline) Config() config.ProcessingConfig {
	return p.cfg.Clone()
}

// Cancel asks the run to stop at the next step boundary. It is idempotent, and a no-op once the
// run finished. Observers are told by the run worker, never from the calling goroutine.
func (p *Pipeline) Cancel() {
	if p.finished.Load() || p.cancelled.Swap(true) {
		return
	}

	p.mu.RLock()
	cancel := p.cancelRun
	p.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
}

// Cancelled reports whether Cancel was called.
func (p *Pipeline) Cancelled() bool {
	return p.cancelled.Load()
}

func (p *Pipeline) notifier() *notifier {
	return &notifier{logger: p.logger, observers: p.observers}
}

// Run executes steps, or every step when none is given, in execution order. It returns the
// results of the executed steps. The error matches ErrStepFailed when a critical step failed and
// insarerr.ErrCancelled when the run was cancelled. A failed visualization is not an error.
func (p *Pipeline) Run(ctx context.Context, steps ...Step) (map[Step]Result, error) {
	plan, err := Plan(steps)
	if err != nil {
		return nil, err
	}

	if !p.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.planned = len(plan)
	p.cancelRun = cancel
	p.mu.Unlock()

	if p.cancelled.Load() {
		cancel()
	}

	notify := p.notifier()
	infos := stepInfos(plan)

	for _, hook := range p.hooks {
		if err := hook.New(infos); err != nil {
			return nil, errors.Wrap(err, "unable to apply pipeline option")
		}
	}

	notify.log(banner)
	notify.log("Starting InSAR Processing")
	notify.log(banner)
	notify.log("Output directory: " + p.cfg.OutputDir)
	notify.log(fmt.Sprintf("Resolution: %gm", p.cfg.Resolution))
	notify.log(fmt.Sprintf("Bursts: %d", len(p.cfg.CleanBursts())))

	var runErr error

	cancelReported := false
	reportCancel := func() {
		if !cancelReported && p.cancelled.Load() {
			cancelReported = true
			notify.log("Processing cancelled by user")
		}
	}

	for i, step := range plan {
		reportCancel()

		if p.cancelled.Load() || runCtx.Err() != nil {
			notify.log("Processing cancelled")
			runErr = errors.Wrapf(insarerr.ErrCancelled, "run stopped before %s", step)

			break
		}

		outcome := p.runStep(runCtx, notify, step, infos[i])
		reportCancel()

		switch outcome.Status() {
		case StatusCancelled:
			runErr = errors.Wrapf(insarerr.ErrCancelled, "run stopped during %s", step)
		case StatusFailed:
			notify.log(fmt.Sprintf("Step %s failed: %v", step, outcome.Err()))
			if step.Critical() {
				runErr = &StepError{Step: step, Err: outcome.Err()}
			}
		}

		if runErr != nil {
			break
		}
	}

	notify.log(banner)
	if runErr == nil {
		notify.log("Processing Complete")
	} else {
		notify.log("Processing Stopped")
	}
	notify.log(banner)

	for _, hook := range p.hooks {
		if err := hook.Finish(); err != nil {
			p.logger.Error().Err(err).Msg("unable to finish pipeline option")
		}
	}

	p.finished.Store(true)

	return p.Results(), runErr
}

func stepInfos(plan []Step) []*model.StepInfo {
	infos := make([]*model.StepInfo, len(plan))
	for i, step := range plan {
		req := step.Requires()
		names := make([]string, len(req))
		for j, r := range req {
			names[j] = string(r)
		}

		infos[i] = &model.StepInfo{
			Name:     string(step),
			Status:   string(StatusPending),
			Requires: names,
			Critical: step.Critical(),
		}
	}

	return infos
}

func (p *Pipeline) runStep(ctx context.Context, notify *notifier, step Step, info *model.StepInfo) Outcome {
	start := time.Now()

	p.mu.Lock()
	p.results[step] = &Result{Step: step, Status: StatusRunning, StartTime: start}
	p.order = append(p.order, step)
	p.mu.Unlock()

	info.StartedAt = start
	info.Status = string(StatusRunning)
	p.callHooks(info, model.PipelineOption.BeforeStep)

	notify.progress(step, 0, "Starting "+string(step))

	outcome := p.execute(ctx, notify, step)

	end := time.Now()

	summary := p.summarize(end)

	p.mu.Lock()
	p.summary = summary
	res := p.results[step]
	res.EndTime = end
	res.Status = outcome.Status()
	switch res.Status {
	case StatusCompleted:
		res.Artifacts = append([]string(nil), outcome.Artifacts()...)
		res.Metadata = outcome.Metadata().Merge(nil)
	case StatusFailed:
		res.Error = outcome.Err().Error()
	case StatusCancelled:
		res.Error = insarerr.ErrCancelled.Error()
	}
	p.mu.Unlock()

	info.FinishedAt = end
	info.Status = string(outcome.Status())
	p.callHooks(info, model.PipelineOption.AfterStep)

	switch outcome.Status() {
	case StatusCompleted:
		notify.progress(step, 100, "Completed "+string(step))
	case StatusFailed:
		p.logger.Error().Err(outcome.Err()).Str("step", string(step)).Msg("step failed")
		notify.progress(step, -1, "Failed: "+outcome.Err().Error())
	case StatusCancelled:
		notify.log(fmt.Sprintf("Step %s cancelled", step))
	}

	return outcome
}

func (p *Pipeline) callHooks(info *model.StepInfo, fn func(model.PipelineOption, *model.StepInfo) error) {
	for _, hook := range p.hooks {
		if err := fn(hook, info); err != nil {
			p.logger.Warn().Err(err).Str("step", info.Name).Msg("pipeline option failed")
		}
	}
}

// execute calls the step function, turning panics into failures and context cancellation caused
// by Cancel into a cancelled outcome.
func (p *Pipeline) execute(ctx context.Context, notify *notifier, step Step) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Failed(insarerr.Computef("step %s panicked: %v", step, r))
		}
	}()

	sc := &StepContext{
		Store:         p.store,
		State:         p.state,
		Collaborators: p.collaborators,
		Logger:        p.logger.With().Str("step", string(step)).Logger(),
		notify:        notify,
		Config:        p.cfg,
		Step:          step,
	}

	outcome = p.table[step](ctx, sc)

	if outcome.Status() == StatusFailed && ctx.Err() != nil && errors.Is(outcome.Err(), ctx.Err()) {
		return Cancelled()
	}

	return outcome
}

// Snapshot is a point-in-time copy of the run status.
type Snapshot struct {
	Results        map[Step]Result `json:"results"`
	Order          []Step          `json:"order"`
	TotalSteps     int             `json:"total_steps"`
	CompletedSteps int             `json:"completed_steps"`
	FailedSteps    int             `json:"failed_steps"`
	Cancelled      bool            `json:"cancelled"`
}

// Status returns a copy of the run status. It never waits for the running step.
func (p *Pipeline) Status() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := Snapshot{
		Results:    make(map[Step]Result, len(p.results)),
		Order:      append([]Step(nil), p.order...),
		TotalSteps: p.planned,
		Cancelled:  p.cancelled.Load(),
	}

	if snap.TotalSteps == 0 {
		snap.TotalSteps = len(defaultOrder)
	}

	for step, res := range p.results {
		snap.Results[step] = res.clone()

		switch res.Status {
		case StatusCompleted:
			snap.CompletedSteps++
		case StatusFailed:
			snap.FailedSteps++
		}
	}

	return snap
}

// Results returns a copy of the results of the executed steps.
func (p *Pipeline) Results() map[Step]Result {
	return p.Status().Results
}

// String renders the snapshot as one line per step in execution order.
func (s Snapshot) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%d/%d completed, %d failed", s.CompletedSteps, s.TotalSteps, s.FailedSteps)
	if s.Cancelled {
		b.WriteString(", cancelled")
	}

	for _, step := range s.Order {
		res := s.Results[step]
		fmt.Fprintf(&b, "\n  %-24s %-9s %s", step, res.Status, res.Duration().Round(time.Millisecond))
		if res.Error != "" {
			fmt.Fprintf(&b, " %s", res.Error)
		}
	}

	return b.String()
}
