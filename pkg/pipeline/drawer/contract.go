package drawer

import (
	"io"
	"time"

	"github.com/askiada/go-insar/pkg/pipeline/measure"
)

// Drawer is an interface that defines the methods for drawing a pipeline run.
type Drawer interface {
	// AddStep adds a step to the pipeline drawer.
	AddStep(stepName string) error
	// AddLink adds a link between parent and children steps.
	AddLink(parentStepName, childrenStepName string, dashed bool) error
	// SetStatus colours a step according to its terminal status.
	SetStatus(stepName, status string, elapsed time.Duration) error
	// SetTotalTime sets the total time for the step.
	SetTotalTime(stepName string, startTime time.Time) error
	// AddMeasure adds a measure to the pipeline drawer.
	AddMeasure(measure measure.Measure) error
	// Render writes the DOT description of the graph.
	Render(w io.Writer) error
	// Draw creates a file with the pipeline graph.
	Draw() error
}
