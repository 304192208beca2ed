// Package model provides the data structures shared between the pipeline and its options.
// It defines the hook interface a pipeline option implements and the step description passed to
// every hook, so options such as measure and drawer do not depend on the pipeline package.
package model
