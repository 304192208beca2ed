// Package measure records how long each pipeline step runs, and how long the run idles between
// two steps.
package measure

import (
	"sync"
)

// DefaultMeasure is an in-memory Measure.
type DefaultMeasure struct {
	mu    sync.RWMutex
	steps map[string]Metric
	names []string
}

// NewDefaultMeasure creates an empty measure.
func NewDefaultMeasure() *DefaultMeasure {
	return &DefaultMeasure{
		steps: make(map[string]Metric),
	}
}

// AddMetric registers a metric for name. Registering a name twice returns the existing metric.
func (m *DefaultMeasure) AddMetric(name string) Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mt, ok := m.steps[name]; ok {
		return mt
	}

	mt := &DefaultMetric{
		allTransports: make(map[string]*TransportInfo),
	}
	m.steps[name] = mt
	m.names = append(m.names, name)

	return mt
}

// GetMetric returns the metric registered for name.
func (m *DefaultMeasure) GetMetric(name string) Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mt, ok := m.steps[name]
	if !ok {
		return nil
	}

	return mt
}

// AllMetrics returns a copy of the metric index.
func (m *DefaultMeasure) AllMetrics() map[string]Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Metric, len(m.steps))
	for k, v := range m.steps {
		out[k] = v
	}

	return out
}

// Names returns the registered step names in order.
func (m *DefaultMeasure) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string(nil), m.names...)
}

var _ Measure = (*DefaultMeasure)(nil)
