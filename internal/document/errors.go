package document

import "errors"

var (
	// ErrInvalidArgument signals a bad call site: empty identifiers or
	// unusable page geometry. Not retryable.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrBaseURLUnknown signals that a relative asset URL could not be made
	// absolute because the request scheme or host is missing.
	ErrBaseURLUnknown = errors.New("base url unknown")
)

// RenderError wraps a failure of the view renderer.
type RenderError struct {
	View string
	Err  error
}

func (e *RenderError) Error() string {
	return "render view " + e.View + ": " + e.Err.Error()
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// PipelineError wraps a failure of the document pipeline. Op names the step
// that failed (open, stylesheet, render, close).
type PipelineError struct {
	Op  string
	Err error
}

func (e *PipelineError) Error() string {
	return "pdf pipeline " + e.Op + ": " + e.Err.Error()
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
