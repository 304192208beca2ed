package pipeline

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Observer receives the notifications of a run. Progress is in [0, 100], or -1 when the step
// failed. Observers are called from the run worker in registration order.
type Observer interface {
	OnProgress(step Step, progress float64, message string)
	OnLog(message string)
}

// ObserverFuncs adapts plain functions to Observer. Nil functions are skipped.
type ObserverFuncs struct {
	Progress func(step Step, progress float64, message string)
	Log      func(message string)
}

func (o ObserverFuncs) OnProgress(step Step, progress float64, message string) {
	if o.Progress != nil {
		o.Progress(step, progress, message)
	}
}

func (o ObserverFuncs) OnLog(message string) {
	if o.Log != nil {
		o.Log(message)
	}
}

var _ Observer = ObserverFuncs{}

// notifier fans notifications out to observers. A panicking observer is logged and skipped.
type notifier struct {
	logger    zerolog.Logger
	observers []Observer
}

func (n *notifier) log(message string) {
	n.logger.Info().Msg(message)

	for i, obs := range n.observers {
		n.call(i, func() { obs.OnLog(message) })
	}
}

func (n *notifier) progress(step Step, progress float64, message string) {
	n.log(fmt.Sprintf("[%s] %.1f%% - %s", step, progress, message))

	for i, obs := range n.observers {
		n.call(i, func() { obs.OnProgress(step, progress, message) })
	}
}

func (n *notifier) call(index int, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error().Int("observer", index).Interface("panic", r).Msg("observer failed")
		}
	}()

	fn()
}
