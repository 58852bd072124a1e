package gpu

import "errors"

var (
	// ErrNilDevice is returned when a renderer is created without a device or queue.
	ErrNilDevice = errors.New("gpu: nil device or queue")

	// ErrBindingUnavailable marks a pass whose required uniform buffer or
	// texture view was not allocated for the frame. Passes panic with it.
	ErrBindingUnavailable = errors.New("gpu: binding unavailable")

	// ErrPipelineFailed is recorded for a pipeline whose compilation failed.
	ErrPipelineFailed = errors.New("gpu: pipeline compilation failed")

	// ErrInvalidTarget is returned for zero-sized or unsupported view targets.
	ErrInvalidTarget = errors.New("gpu: invalid view target")
)
