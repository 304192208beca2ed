package pipeline

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrStepFailed is matched by the error Run returns when a critical step failed.
	ErrStepFailed = errors.New("critical step failed")
	// ErrUnknownStep reports a step that is not part of the processing sequence.
	ErrUnknownStep = errors.New("unknown step")
	// ErrMissingStep reports a transition table without a function for some step.
	ErrMissingStep = errors.New("missing step function")
	// ErrAlreadyRunning is returned when Run is called more than once.
	ErrAlreadyRunning = errors.New("pipeline already started")

	errUnknownFailure = errors.New("step failed without error")
)

// StepError is the failure of a critical step. It matches ErrStepFailed and unwraps to the cause.
type StepError struct {
	Err  error
	Step Step
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func (e *StepError) Is(target error) bool { return target == ErrStepFailed }
