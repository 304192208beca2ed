package pipeline

import (
	"context"
	"fmt"
	"path"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/askiada/go-insar/internal/config"
	"github.com/askiada/go-insar/pkg/raster"
)

// StepFunc executes one step against the run state.
type StepFunc func(ctx context.Context, sc *StepContext) Outcome

// Table maps every step to its function.
type Table map[Step]StepFunc

// Validate checks that t has a function for every step and nothing else.
func (t Table) Validate() error {
	for step, fn := range t {
		if !step.Valid() {
			return errors.Wrapf(ErrUnknownStep, "%q", step)
		}

		if fn == nil {
			return errors.Wrapf(ErrMissingStep, "%s", step)
		}
	}

	for _, step := range defaultOrder {
		if _, ok := t[step]; !ok {
			return errors.Wrapf(ErrMissingStep, "%s", step)
		}
	}

	return nil
}

// With returns a copy of t with step bound to fn.
func (t Table) With(step Step, fn StepFunc) Table {
	out := make(Table, len(t)+1)
	for k, v := range t {
		out[k] = v
	}
	out[step] = fn

	return out
}

// DefaultTable returns the InSAR processing steps.
func DefaultTable() Table {
	return Table{
		DownloadData:           downloadData,
		DownloadDEM:            downloadDEM,
		DownloadLandmask:       downloadLandmask,
		InitializeStack:        initializeStack,
		ComputeAlignment:       computeAlignment,
		ComputeGeocoding:       computeGeocoding,
		ComputeInterferogram:   computeInterferogram,
		PhaseUnwrapping:        phaseUnwrapping,
		ComputeDisplacement:    computeDisplacement,
		GenerateVisualizations: generateVisualizations,
	}
}

// StepContext is what a step function sees of the run.
type StepContext struct {
	Store         raster.Store
	State         *State
	Collaborators Collaborators
	Logger        zerolog.Logger
	notify        *notifier
	Config        config.ProcessingConfig
	Step          Step
}

// Progress reports intermediate progress of the step.
func (sc *StepContext) Progress(progress float64, message string) {
	if sc.notify != nil {
		sc.notify.progress(sc.Step, progress, message)
	}
}

// Logf emits a log line to the observers.
func (sc *StepContext) Logf(format string, args ...any) {
	if sc.notify != nil {
		sc.notify.log(fmt.Sprintf(format, args...))
	}
}

// Path returns the store path of an artifact of the run.
func (sc *StepContext) Path(name string) string {
	return path.Join(sc.Config.WorkDir, name)
}
