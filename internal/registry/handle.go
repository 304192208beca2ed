package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askiada/go-insar/pkg/pipeline"
)

// Report is what a finished run returned.
type Report struct {
	Results map[pipeline.Step]pipeline.Result
	// Err is the run error: nil, a step failure or a cancellation.
	Err    error
	Status string
}

// handle is the supervisor side of a run. Only the run goroutine writes report, before done is
// closed. Only the forwarding goroutine appends logs, and it is finished once done is closed.
type handle struct {
	started   time.Time
	pipe      *pipeline.Pipeline
	obs       *runObserver
	done      chan struct{}
	forwarded chan struct{}
	report    Report
	logs      []string
	mu        sync.Mutex
	id        uuid.UUID
}

func (h *handle) finish(report Report) {
	h.report = report
	close(h.done)
}

func (h *handle) appendLog(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.logs = append(h.logs, line)
}

func (h *handle) logLines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), h.logs...)
}
