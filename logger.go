package terra

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/terra/internal/gpu"
	"github.com/gogpu/terra/terrain"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for terra and its sub-packages.
// By default terra produces no log output. Pass nil to restore that.
//
// Log levels used by terra:
//   - [slog.LevelDebug]: pipeline compilation, streaming passes, mesh uploads
//   - [slog.LevelInfo]: app lifecycle
//   - [slog.LevelWarn]: pipeline compilation failures, release errors
//
// Example:
//
//	terra.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	terrain.SetLogger(l)
	gpu.SetLogger(l)
}

// Logger returns the current logger used by terra.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
