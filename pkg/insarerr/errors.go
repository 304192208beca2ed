// Package insarerr defines the error taxonomy shared by the processing stages and the orchestrator.
//
// Every error produced by a stage wraps exactly one of the sentinel errors below, so callers can
// classify a failure with errors.Is or KindOf without inspecting messages.
package insarerr

import (
	"github.com/pkg/errors"
)

var (
	// ErrConfig reports invalid or missing configuration, such as an empty acquisition list or a
	// zero-size raster overlap. It is never retried.
	ErrConfig = errors.New("config error")
	// ErrExternalIO reports a failure in an external collaborator (download, file read/write).
	ErrExternalIO = errors.New("external io error")
	// ErrCompute reports a numerical failure in a processing stage.
	ErrCompute = errors.New("compute error")
	// ErrCancelled reports that cancellation was observed at a step boundary.
	ErrCancelled = errors.New("cancelled")
)

// Kind classifies an error against the taxonomy.
type Kind string

const (
	KindUnknown    Kind = "unknown"
	KindConfig     Kind = "config"
	KindExternalIO Kind = "external_io"
	KindCompute    Kind = "compute"
	KindCancelled  Kind = "cancelled"
)

// Configf wraps ErrConfig with a formatted message.
func Configf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfig, format, args...)
}

// ExternalIO wraps err as an ErrExternalIO failure. It returns nil if err is nil.
func ExternalIO(err error, msg string) error {
	if err == nil {
		return nil
	}

	return &classified{kind: ErrExternalIO, err: errors.Wrap(err, msg)}
}

// ExternalIOf wraps ErrExternalIO with a formatted message.
func ExternalIOf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrExternalIO, format, args...)
}

// Computef wraps ErrCompute with a formatted message.
func Computef(format string, args ...interface{}) error {
	return errors.Wrapf(ErrCompute, format, args...)
}

// KindOf returns the taxonomy class of err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrConfig):
		return KindConfig
	case errors.Is(err, ErrExternalIO):
		return KindExternalIO
	case errors.Is(err, ErrCompute):
		return KindCompute
	default:
		return KindUnknown
	}
}

// classified attaches a sentinel to an underlying error while keeping the original chain.
type classified struct {
	kind error
	err  error
}

func (c *classified) Error() string {
	return c.kind.Error() + ": " + c.err.Error()
}

func (c *classified) Unwrap() error {
	return c.err
}

func (c *classified) Is(target error) bool {
	return target == c.kind
}
