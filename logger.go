package splat

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so the caller skips message formatting entirely.
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

// SetLogger configures the logger for splat and its sub-packages.
// By default, splat produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore the silent
// default. The new logger is also handed to the accelerators of all open
// engines that were not created with [WithLogger].
//
// Log levels used by splat:
//   - [slog.LevelDebug]: per-render statistics (visible Gaussians, overlaps)
//   - [slog.LevelInfo]: lifecycle events (engine created, GPU adapter selected)
//   - [slog.LevelWarn]: non-fatal issues (CPU fallback, accelerator init failure)
//
// Example:
//
//	splat.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	followersMu.Lock()
	defer followersMu.Unlock()
	for a := range followers {
		propagateLogger(a, l)
	}
}

// Logger returns the current logger used by splat.
// Sub-packages (gpu/) call this to share the same logger configuration.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by accelerators that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes l to a if it implements loggerSetter.
func propagateLogger(a Accelerator, l *slog.Logger) {
	if ls, ok := a.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

// followers holds the accelerators of open engines that use the package
// logger. Engines add their accelerator on creation and remove it on Close.
var (
	followersMu sync.Mutex
	followers   = make(map[Accelerator]struct{})
)

func followLogger(a Accelerator) {
	followersMu.Lock()
	followers[a] = struct{}{}
	followersMu.Unlock()
	propagateLogger(a, Logger())
}

func unfollowLogger(a Accelerator) {
	followersMu.Lock()
	delete(followers, a)
	followersMu.Unlock()
}
