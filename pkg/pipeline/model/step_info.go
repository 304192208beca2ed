package model

import "time"

// StepInfo describes a processing step to pipeline options.
type StepInfo struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Name       string
	Status     string
	Requires   []string
	Critical   bool
}

// Duration returns the time the step ran for, zero until it finished.
func (s *StepInfo) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}

	return s.FinishedAt.Sub(s.StartedAt)
}

var (
	// StartStep is the virtual step every run starts from.
	StartStep = &StepInfo{Name: "start"}
	// EndStep is the virtual step every run ends in.
	EndStep = &StepInfo{Name: "end"}
)
