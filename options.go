package terra

import (
	"io/fs"
	"log/slog"

	"github.com/gogpu/gpucontext"
)

// Option configures an App during creation.
//
// Example:
//
//	app, err := terra.New(provider, cfg,
//	    terra.WithWorkers(4),
//	    terra.WithEventSource(window),
//	)
type Option func(*options)

type options struct {
	logger  *slog.Logger
	workers int
	shaders fs.FS
	events  gpucontext.EventSource
	pointer gpucontext.PointerEventSource
	scroll  gpucontext.ScrollEventSource
}

func defaultOptions(cfg Config) options {
	return options{workers: cfg.Render.Workers}
}

// WithLogger sets the logger for terra and its sub-packages,
// as SetLogger does.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithWorkers overrides the number of worker goroutines used for
// pipeline compilation and parallel systems. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithShaderFS replaces the embedded WGSL sources. The file system must
// hold the same file names at its root.
func WithShaderFS(fsys fs.FS) Option {
	return func(o *options) {
		o.shaders = fsys
	}
}

// WithEventSource feeds keyboard, mouse and focus events to the observer.
func WithEventSource(src gpucontext.EventSource) Option {
	return func(o *options) {
		o.events = src
	}
}

// WithPointerSource feeds pointer motion to the observer. When set, the
// mouse move callbacks of the event source are ignored.
func WithPointerSource(src gpucontext.PointerEventSource) Option {
	return func(o *options) {
		o.pointer = src
	}
}

// WithScrollSource feeds detailed scroll events to the observer. When
// set, the scroll callback of the event source is ignored.
func WithScrollSource(src gpucontext.ScrollEventSource) Option {
	return func(o *options) {
		o.scroll = src
	}
}
