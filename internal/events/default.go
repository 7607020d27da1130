package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/phrazzld/tracecore/internal/gate"
)

var (
	defaultHub     *Hub
	defaultHubOnce sync.Once
)

// Default returns the process-wide Hub, constructing it on first use. It runs
// listeners under gate.Process() and logs through slog.Default().
func Default() *Hub {
	defaultHubOnce.Do(func() {
		defaultHub = NewHub(slog.Default(), WithGate(gate.Process()))
	})
	return defaultHub
}

// HasListeners calls HasListeners on the default hub.
func HasListeners(event string) bool { return Default().HasListeners(event) }

// On calls On on the default hub.
func On(event string, l *Listener) { Default().On(event, l) }

// OnAll calls OnAll on the default hub.
func OnAll(l *Listener) { Default().OnAll(l) }

// Remove calls Remove on the default hub.
func Remove(event string, l *Listener) { Default().Remove(event, l) }

// Reset calls Reset on the default hub.
func Reset() { Default().Reset() }

// Dispatch calls Dispatch on the default hub.
func Dispatch(ctx context.Context, event string, args ...any) error {
	return Default().Dispatch(ctx, event, args...)
}

// DispatchWithResults calls DispatchWithResults on the default hub.
func DispatchWithResults(ctx context.Context, event string, args ...any) ([]any, []error) {
	return Default().DispatchWithResults(ctx, event, args...)
}
