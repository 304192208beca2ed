// Package registry supervises concurrent pipeline runs.
//
// Every run is owned by its own goroutine and publishes events to a bounded channel. The
// supervisor forwards the events of all runs into one stream and broadcasts it to subscribers.
// The run handles map is the only state shared between runs.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/askiada/go-insar/internal/config"
	"github.com/askiada/go-insar/internal/db"
	"github.com/askiada/go-insar/pkg/pipeline"
)

var (
	// ErrRunNotFound is returned for an unknown run identifier.
	ErrRunNotFound = errors.New("run not found")
	// ErrClosed is returned by Start once the supervisor is closed.
	ErrClosed = errors.New("supervisor closed")
)

const defaultBuffer = 256

// Option configures a Supervisor.
type Option func(s *Supervisor)

// WithBuffer sets the capacity of the run and subscriber channels.
func WithBuffer(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// WithLogger sets the supervisor logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// WithPipelineOptions adds options applied to the pipeline of every run.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(s *Supervisor) {
		s.pipelineOpts = append(s.pipelineOpts, opts...)
	}
}

// WithRunOptions adds options built for each run, such as per-run hooks.
func WithRunOptions(fn func(id uuid.UUID) []pipeline.Option) Option {
	return func(s *Supervisor) {
		s.runOpts = fn
	}
}

// WithHistory records the outcome of every run in d.
func WithHistory(d *db.DB) Option {
	return func(s *Supervisor) {
		s.history = d
	}
}

type subscriber struct {
	c       chan Event
	dropped int
}

// Supervisor starts runs and multiplexes their events.
type Supervisor struct {
	ctx          context.Context
	history      *db.DB
	runOpts      func(id uuid.UUID) []pipeline.Option
	cancel       context.CancelFunc
	out          chan Event
	runs         map[uuid.UUID]*handle
	subscribers  map[int]*subscriber
	logger       zerolog.Logger
	pipelineOpts []pipeline.Option
	wg           sync.WaitGroup
	broadcasted  chan struct{}
	buffer       int
	nextSub      int
	mu           sync.Mutex
	closed       bool
}

// New returns a running supervisor. Close releases it.
func New(opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Supervisor{
		ctx:         ctx,
		cancel:      cancel,
		runs:        make(map[uuid.UUID]*handle),
		subscribers: make(map[int]*subscriber),
		logger:      zerolog.Nop(),
		buffer:      defaultBuffer,
		broadcasted: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.out = make(chan Event, s.buffer)

	go s.broadcast()

	return s
}

// Start creates a pipeline for cfg and runs steps (every step when none is given) in the
// background.
func (s *Supervisor) Start(cfg config.ProcessingConfig, steps ...pipeline.Step) (uuid.UUID, error) {
	if _, err := pipeline.Plan(steps); err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	obs := newRunObserver(id, s.buffer)

	opts := append([]pipeline.Option{}, s.pipelineOpts...)
	if s.runOpts != nil {
		opts = append(opts, s.runOpts(id)...)
	}
	opts = append(opts,
		pipeline.WithLogger(s.logger.With().Str("run_id", id.String()).Logger()),
		pipeline.WithObserver(obs),
	)

	pipe, err := pipeline.New(cfg, opts...)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "unable to create pipeline")
	}

	h := &handle{
		id:        id,
		pipe:      pipe,
		obs:       obs,
		done:      make(chan struct{}),
		forwarded: make(chan struct{}),
		started:   time.Now(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return uuid.Nil, ErrClosed
	}
	s.runs[id] = h
	s.wg.Add(2)
	s.mu.Unlock()

	go s.forward(h)
	go s.run(h, steps)

	return id, nil
}

// run is the actor owning the pipeline of h.
func (s *Supervisor) run(h *handle, steps []pipeline.Step) {
	defer s.wg.Done()

	results, err := h.pipe.Run(s.ctx, steps...)

	if s.history != nil {
		saveErr := s.history.SaveRun(context.Background(), h.id, h.pipe.Config(), h.started, h.pipe.Status(), err)
		if saveErr != nil {
			s.logger.Error().Err(saveErr).Str("run_id", h.id.String()).Msg("unable to record run")
		}
	}

	finished := Event{Kind: EventFinished, Status: db.RunStatus(err)}
	if err != nil {
		finished.Error = err.Error()
	}

	h.obs.close(finished)
	<-h.forwarded

	h.finish(Report{Results: results, Err: err, Status: finished.Status})
}

// forward copies the events of h into the supervisor stream and keeps its log lines.
func (s *Supervisor) forward(h *handle) {
	defer s.wg.Done()
	defer close(h.forwarded)

	for ev := range h.obs.events {
		if ev.Kind == EventLog {
			h.appendLog(ev.Message)
		}

		s.out <- ev
	}
}

// broadcast delivers the stream to subscribers. A subscriber that does not keep up misses events.
func (s *Supervisor) broadcast() {
	defer close(s.broadcasted)

	for ev := range s.out {
		s.mu.Lock()
		for key, sub := range s.subscribers {
			select {
			case sub.c <- ev:
			default:
				sub.dropped++
				s.logger.Warn().Int("subscriber", key).Int("dropped", sub.dropped).Msg("subscriber is too slow, event dropped")
			}
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, sub := range s.subscribers {
		close(sub.c)
		delete(s.subscribers, key)
	}
}

// Subscribe returns a channel receiving the events of every run, and a function ending the
// subscription. The channel is closed when the subscription ends or the supervisor closes.
func (s *Supervisor) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := make(chan Event, s.buffer)
	if s.closed {
		close(c)
		return c, func() {}
	}

	key := s.nextSub
	s.nextSub++
	s.subscribers[key] = &subscriber{c: c}

	var once sync.Once

	return c, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()

			if sub, ok := s.subscribers[key]; ok {
				close(sub.c)
				delete(s.subscribers, key)
			}
		})
	}
}

func (s *Supervisor) lookup(id uuid.UUID) (*handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.runs[id]
	if !ok {
		return nil, errors.Wrap(ErrRunNotFound, id.String())
	}

	return h, nil
}

// Cancel asks a run to stop at its next step boundary.
func (s *Supervisor) Cancel(id uuid.UUID) error {
	h, err := s.lookup(id)
	if err != nil {
		return err
	}

	h.pipe.Cancel()

	return nil
}

// Status returns a snapshot of a run. It never waits for the running step.
func (s *Supervisor) Status(id uuid.UUID) (pipeline.Snapshot, error) {
	h, err := s.lookup(id)
	if err != nil {
		return pipeline.Snapshot{}, err
	}

	return h.pipe.Status(), nil
}

// Logs returns the log lines a run emitted so far.
func (s *Supervisor) Logs(id uuid.UUID) ([]string, error) {
	h, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	return h.logLines(), nil
}

// Summary returns the product statistics of a run so far.
func (s *Supervisor) Summary(id uuid.UUID) (pipeline.Summary, error) {
	h, err := s.lookup(id)
	if err != nil {
		return pipeline.Summary{}, err
	}

	return h.pipe.Summary(), nil
}

// Wait blocks until the run finished or ctx is done.
func (s *Supervisor) Wait(ctx context.Context, id uuid.UUID) (Report, error) {
	h, err := s.lookup(id)
	if err != nil {
		return Report{}, err
	}

	select {
	case <-h.done:
		return h.report, nil
	case <-ctx.Done():
		return Report{}, errors.Wrap(ctx.Err(), "waiting for run")
	}
}

// Runs returns the identifiers of every started run.
func (s *Supervisor) Runs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]uuid.UUID, 0, len(s.runs))
	for id := range s.runs {
		out = append(out, id)
	}

	return out
}

// Close cancels the running pipelines, waits for them and closes every subscription.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	close(s.out)
	<-s.broadcasted
}
