package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/askiada/go-insar/pkg/pipeline/model"
	"github.com/askiada/go-insar/pkg/raster"
)

// Option configures a Pipeline.
type Option func(p *Pipeline)

// WithObserver registers an observer. Observers are notified in registration order.
func WithObserver(obs Observer) Option {
	return func(p *Pipeline) {
		if obs != nil {
			p.observers = append(p.observers, obs)
		}
	}
}

// WithLogger sets the logger of the run.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithHooks adds pipeline options such as measure and drawer.
func WithHooks(hooks ...model.PipelineOption) Option {
	return func(p *Pipeline) {
		p.hooks = append(p.hooks, hooks...)
	}
}

// WithTable replaces the step functions.
func WithTable(t Table) Option {
	return func(p *Pipeline) {
		p.table = t
	}
}

// WithStore sets the raster store artifacts are saved to.
func WithStore(s raster.Store) Option {
	return func(p *Pipeline) {
		p.store = s
	}
}

// WithCollaborators sets the external systems used by the steps.
func WithCollaborators(c Collaborators) Option {
	return func(p *Pipeline) {
		p.collaborators = c
	}
}

// WithState seeds the run state, for runs resuming from earlier products.
func WithState(s *State) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.state = s
		}
	}
}
