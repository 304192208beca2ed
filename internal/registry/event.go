package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askiada/go-insar/pkg/pipeline"
)

// EventKind tags an Event.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventLog      EventKind = "log"
	EventFinished EventKind = "finished"
)

// Event is a notification of one run. Progress events carry Step, Progress and Message; log
// events carry Message; the finished event carries Status and Error.
type Event struct {
	Time     time.Time     `json:"time"`
	Kind     EventKind     `json:"kind"`
	Step     pipeline.Step `json:"step,omitempty"`
	Message  string        `json:"message,omitempty"`
	Status   string        `json:"status,omitempty"`
	Error    string        `json:"error,omitempty"`
	Progress float64       `json:"progress,omitempty"`
	RunID    uuid.UUID     `json:"run_id"`
}

// runObserver turns pipeline notifications into events on the run channel. Sends block while the
// channel is full, so a run slows down rather than losing its events.
type runObserver struct {
	events chan Event
	mu     sync.Mutex
	id     uuid.UUID
	closed bool
}

func newRunObserver(id uuid.UUID, buffer int) *runObserver {
	return &runObserver{events: make(chan Event, buffer), id: id}
}

func (o *runObserver) send(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}

	ev.Time = time.Now()
	ev.RunID = o.id
	o.events <- ev
}

// close sends the last event of the run and closes the channel. Later notifications are ignored.
func (o *runObserver) close(last Event) {
	o.send(last)

	o.mu.Lock()
	defer o.mu.Unlock()

	o.closed = true
	close(o.events)
}

func (o *runObserver) OnProgress(step pipeline.Step, progress float64, message string) {
	o.send(Event{Kind: EventProgress, Step: step, Progress: progress, Message: message})
}

func (o *runObserver) OnLog(message string) {
	o.send(Event{Kind: EventLog, Message: message})
}

var _ pipeline.Observer = (*runObserver)(nil)
