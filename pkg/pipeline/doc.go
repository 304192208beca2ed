// Package pipeline sequences the InSAR processing steps of one run.
//
// A Pipeline is a state machine over an ordered list of steps. Every step goes through
// pending, running and then completed, failed or cancelled. Step functions are looked up in a
// transition Table keyed by Step and return an Outcome by value. The pipeline records one Result
// per executed step and notifies its observers of progress and log lines.
//
// A failing critical step aborts the run. Visualization is the only non-critical step.
// Cancellation is cooperative: it is observed at step boundaries, and by collaborators blocked
// on the run context.
package pipeline
