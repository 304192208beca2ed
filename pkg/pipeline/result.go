package pipeline

import (
	"time"

	"github.com/askiada/go-insar/pkg/raster"
)

// Status is the lifecycle state of a step.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a step in status s has finished.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Result records the execution of one step. Artifacts are only set once the step completed.
type Result struct {
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Metadata  raster.Metadata `json:"metadata,omitempty"`
	Step      Step            `json:"step"`
	Status    Status          `json:"status"`
	Error     string          `json:"error,omitempty"`
	Artifacts []string        `json:"output_files,omitempty"`
}

// Duration returns how long the step ran, zero while it runs.
func (r Result) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}

	return r.EndTime.Sub(r.StartTime)
}

func (r Result) clone() Result {
	if r.Artifacts != nil {
		r.Artifacts = append([]string(nil), r.Artifacts...)
	}

	if r.Metadata != nil {
		r.Metadata = r.Metadata.Merge(nil)
	}

	return r
}

type outcomeKind int

const (
	outcomeCompleted outcomeKind = iota
	outcomeFailed
	outcomeCancelled
)

// Outcome is what a step function returns: completed with artifacts, failed with an error, or
// cancelled.
type Outcome struct {
	err       error
	metadata  raster.Metadata
	artifacts []string
	kind      outcomeKind
}

// Completed returns a successful outcome.
func Completed(artifacts []string, metadata raster.Metadata) Outcome {
	return Outcome{kind: outcomeCompleted, artifacts: artifacts, metadata: metadata}
}

// Failed returns a failed outcome. A nil err is reported as an unknown failure.
func Failed(err error) Outcome {
	if err == nil {
		err = errUnknownFailure
	}

	return Outcome{kind: outcomeFailed, err: err}
}

// Cancelled returns the outcome of a step that observed cancellation.
func Cancelled() Outcome {
	return Outcome{kind: outcomeCancelled}
}

// Status returns the terminal status the outcome maps to.
func (o Outcome) Status() Status {
	switch o.kind {
	case outcomeFailed:
		return StatusFailed
	case outcomeCancelled:
		return StatusCancelled
	default:
		return StatusCompleted
	}
}

// Err returns the failure cause, nil unless the outcome failed.
func (o Outcome) Err() error { return o.err }

// Artifacts returns the output references of a completed step.
func (o Outcome) Artifacts() []string { return o.artifacts }

// Metadata returns the per-step metadata of a completed step.
func (o Outcome) Metadata() raster.Metadata { return o.metadata }
