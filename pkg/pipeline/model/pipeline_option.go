package model

// PipelineOption defines the interface for pipeline options.
type PipelineOption interface {
	// New initialises the pipeline option with the planned steps, in execution order.
	New(planned []*StepInfo) error
	// BeforeStep runs before the step is executed.
	BeforeStep(step *StepInfo) error
	// AfterStep runs once the step reached a terminal status.
	AfterStep(step *StepInfo) error
	// Finish runs after the pipeline is finished, including after an aborted run.
	Finish() error
}
