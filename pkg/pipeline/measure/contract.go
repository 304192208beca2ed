package measure

import "time"

// Measure collects timing metrics per step.
type Measure interface {
	// AddMetric registers a metric for a step, keeping registration order.
	AddMetric(name string) Metric
	// GetMetric returns the metric of a step, nil if it was never registered.
	GetMetric(name string) Metric
	// AllMetrics returns every metric by step name.
	AllMetrics() map[string]Metric
	// Names returns the step names in registration order.
	Names() []string
}

// Metric holds the timings of one step.
type Metric interface {
	AddDuration(elapsed time.Duration)
	AddTransportDuration(inputStepName string, elapsed time.Duration)
	AVGDuration() time.Duration
	AVGTransportDuration() map[string]*TransportInfo
	SetTotalDuration(endDuration time.Duration)
	GetTotalDuration() time.Duration
	AllTransports() map[string]*TransportInfo
}
