package measure

import (
	"sync"
	"time"

	"github.com/askiada/go-insar/pkg/pipeline/model"
)

type pipelineMeasure struct {
	Measure
	mu        sync.Mutex
	startTime time.Time
	lastName  string
	lastEnd   time.Time
}

func (pm *pipelineMeasure) New(planned []*model.StepInfo) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.AddMetric(model.StartStep.Name)
	for _, step := range planned {
		pm.AddMetric(step.Name)
	}
	pm.AddMetric(model.EndStep.Name)

	pm.startTime = time.Now()
	pm.lastName = model.StartStep.Name
	pm.lastEnd = pm.startTime

	return nil
}

func (pm *pipelineMeasure) BeforeStep(step *model.StepInfo) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	started := step.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	pm.AddMetric(step.Name).AddTransportDuration(pm.lastName, started.Sub(pm.lastEnd))

	return nil
}

func (pm *pipelineMeasure) AfterStep(step *model.StepInfo) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	mt := pm.AddMetric(step.Name)
	mt.AddDuration(step.Duration())
	mt.SetTotalDuration(step.FinishedAt.Sub(pm.startTime))

	pm.lastName = step.Name
	pm.lastEnd = step.FinishedAt

	return nil
}

func (pm *pipelineMeasure) Finish() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	end := pm.AddMetric(model.EndStep.Name)
	end.AddTransportDuration(pm.lastName, time.Since(pm.lastEnd))
	end.SetTotalDuration(time.Since(pm.startTime))

	return nil
}

// PipelineMeasure returns a pipeline option recording step timings into measure.
func PipelineMeasure(measure Measure) model.PipelineOption {
	return &pipelineMeasure{Measure: measure}
}
