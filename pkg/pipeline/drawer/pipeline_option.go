package drawer

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-insar/pkg/pipeline/measure"
	"github.com/askiada/go-insar/pkg/pipeline/model"
)

type pipelineDrawer struct {
	Drawer
	m         measure.Measure
	mu        sync.Mutex
	startTime time.Time
}

// New adds the planned steps chained in execution order. Dependencies that skip a step are drawn
// as dashed links.
func (pd *pipelineDrawer) New(planned []*model.StepInfo) error {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	pd.startTime = time.Now()

	err := pd.AddStep(model.StartStep.Name)
	if err != nil {
		return errors.Wrap(err, "unable to add start step to drawer")
	}

	previous := model.StartStep.Name
	for _, step := range planned {
		err = pd.AddStep(step.Name)
		if err != nil {
			return errors.Wrapf(err, "unable to add step %s to drawer", step.Name)
		}

		err = pd.AddLink(previous, step.Name, false)
		if err != nil {
			return err
		}

		previous = step.Name
	}

	err = pd.AddStep(model.EndStep.Name)
	if err != nil {
		return errors.Wrap(err, "unable to add end step to drawer")
	}

	err = pd.AddLink(previous, model.EndStep.Name, false)
	if err != nil {
		return err
	}

	for i, step := range planned {
		for _, req := range step.Requires {
			if i > 0 && planned[i-1].Name == req {
				continue
			}

			if !plannedStep(planned, req) {
				continue
			}

			err = pd.AddLink(req, step.Name, true)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func plannedStep(planned []*model.StepInfo, name string) bool {
	for _, step := range planned {
		if step.Name == name {
			return true
		}
	}

	return false
}

func (pd *pipelineDrawer) BeforeStep(step *model.StepInfo) error {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	return pd.SetStatus(step.Name, step.Status, 0)
}

func (pd *pipelineDrawer) AfterStep(step *model.StepInfo) error {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	return pd.SetStatus(step.Name, step.Status, step.Duration())
}

func (pd *pipelineDrawer) Finish() error {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	err := pd.SetTotalTime(model.EndStep.Name, pd.startTime)
	if err != nil {
		return errors.Wrap(err, "unable to set total time")
	}

	if pd.m != nil {
		err = pd.AddMeasure(pd.m)
		if err != nil {
			return errors.Wrap(err, "unable to add measure")
		}
	}

	err = pd.Draw()
	if err != nil {
		return errors.Wrap(err, "unable to draw pipeline")
	}

	return nil
}

// PipelineDrawer returns a pipeline option drawing the run with drawer. Links are coloured with
// the timings of measure when it is not nil.
func PipelineDrawer(drawer Drawer, measure measure.Measure) model.PipelineOption {
	return &pipelineDrawer{Drawer: drawer, m: measure}
}
