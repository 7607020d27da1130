package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sort"
	"sync"

	"github.com/phrazzld/tracecore/internal/gate"
)

// Hub is a registry of listeners keyed by event name plus a list of global
// listeners that receive every event. It is safe for concurrent use.
type Hub struct {
	mu        sync.RWMutex
	listeners map[string][]*Listener // event name -> most recent first
	global    []*Listener

	gate         gate.Gate
	raiseOnError bool
	logger       *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithGate sets the gate every listener body runs under.
// Defaults to gate.Noop.
func WithGate(g gate.Gate) Option {
	return func(h *Hub) {
		if g != nil {
			h.gate = g
		}
	}
}

// WithRaiseOnError makes Dispatch stop at the first failing named listener
// and return its error. Global listeners still run.
func WithRaiseOnError(raise bool) Option {
	return func(h *Hub) {
		h.raiseOnError = raise
	}
}

// NewHub creates an empty Hub. A nil logger falls back to slog.Default().
func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		listeners: make(map[string][]*Listener),
		gate:      gate.Noop{},
		logger:    logger.With("component", "event_hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HasListeners reports whether at least one listener is registered under event.
func (h *Hub) HasListeners(event string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[event]) > 0
}

// On registers l under event. Registering a listener that is already present
// for event is a no-op. New listeners run before older ones.
func (h *Hub) On(event string, l *Listener) {
	if l == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	current := h.listeners[event]
	if slices.Contains(current, l) {
		return
	}
	h.listeners[event] = slices.Insert(current, 0, l)
	h.logger.Debug("registered listener",
		"event", event,
		"listener_id", l.id,
		"listener_count", len(current)+1)
}

// OnAll registers l as a global listener, called for every dispatched event.
// Same deduplication and ordering rules as On.
func (h *Hub) OnAll(l *Listener) {
	if l == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if slices.Contains(h.global, l) {
		return
	}
	h.global = slices.Insert(h.global, 0, l)
	h.logger.Debug("registered global listener",
		"listener_id", l.id,
		"listener_count", len(h.global))
}

// Remove unregisters l from event. It is a no-op if l is not registered.
// The event name is forgotten once its last listener is removed.
func (h *Hub) Remove(event string, l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.listeners[event]
	if !ok {
		return
	}

	remaining := slices.DeleteFunc(current, func(x *Listener) bool { return x == l })
	if len(remaining) == 0 {
		delete(h.listeners, event)
		return
	}
	h.listeners[event] = remaining
}

// RemoveAll unregisters l from the global list.
func (h *Hub) RemoveAll(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.global = slices.DeleteFunc(h.global, func(x *Listener) bool { return x == l })
}

// Reset drops every named and global listener.
func (h *Hub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.listeners = make(map[string][]*Listener)
	h.global = nil
	h.logger.Debug("listeners reset")
}

// EventNames returns the names that currently have listeners, sorted.
func (h *Hub) EventNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.listeners))
	for name := range h.listeners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListenerCount returns the number of listeners registered under event.
func (h *Hub) ListenerCount(event string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[event])
}

// GlobalListenerCount returns the number of global listeners.
func (h *Hub) GlobalListenerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.global)
}

// Dispatch invokes every listener registered under event with args, then
// every global listener with (event, args). Listener errors and panics are
// logged and swallowed, unless the hub raises on error: then the first named
// listener failure skips the remaining named listeners and is returned
// wrapped in ErrListenerFailed after the global listeners have run.
func (h *Hub) Dispatch(ctx context.Context, event string, args ...any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	named, global := h.snapshot(event)

	var firstErr error
	for _, l := range named {
		if _, err := h.invoke(ctx, event, l, args); err != nil {
			h.logFailure(event, l, err)
			if h.raiseOnError {
				firstErr = fmt.Errorf("%w: event %q: %w", ErrListenerFailed, event, err)
				break
			}
		}
	}

	h.dispatchGlobal(ctx, event, global, args)
	return firstErr
}

// DispatchWithResults invokes listeners like Dispatch but never stops early.
// It returns two slices of equal length, one entry per named listener in call
// order: results[i] holds listener i's return value (nil if it failed) and
// errs[i] holds its error (nil if it succeeded). Global listeners run once
// afterwards and their outcomes are not collected.
func (h *Hub) DispatchWithResults(ctx context.Context, event string, args ...any) ([]any, []error) {
	if ctx == nil {
		ctx = context.Background()
	}
	named, global := h.snapshot(event)

	results := make([]any, 0, len(named))
	errs := make([]error, 0, len(named))
	for _, l := range named {
		result, err := h.invoke(ctx, event, l, args)
		if err != nil {
			h.logger.Debug("listener failed, error collected",
				"event", event,
				"listener_id", l.id,
				"error", err)
			results = append(results, nil)
			errs = append(errs, err)
			continue
		}
		results = append(results, result)
		errs = append(errs, nil)
	}

	h.dispatchGlobal(ctx, event, global, args)
	return results, errs
}

func (h *Hub) dispatchGlobal(ctx context.Context, event string, global []*Listener, args []any) {
	if len(global) == 0 {
		return
	}
	globalArgs := []any{event, args}
	for _, l := range global {
		if _, err := h.invoke(ctx, event, l, globalArgs); err != nil {
			h.logFailure(event, l, err)
		}
	}
}

// snapshot copies the listener lists so they can be iterated without the lock.
func (h *Hub) snapshot(event string) (named, global []*Listener) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return slices.Clone(h.listeners[event]), slices.Clone(h.global)
}

// invoke runs a listener under the gate, converting a panic into a PanicError.
// When the gate cannot be acquired the listener is skipped and the gate error
// is returned.
func (h *Hub) invoke(ctx context.Context, event string, l *Listener, args []any) (result any, err error) {
	gerr := h.gate.Do(ctx, func(ctx context.Context) {
		defer func() {
			if p := recover(); p != nil {
				result = nil
				err = &PanicError{Event: event, Value: p, Stack: debug.Stack()}
			}
		}()
		result, err = l.fn(ctx, args...)
	})
	if gerr != nil {
		return nil, gerr
	}
	return result, err
}

func (h *Hub) logFailure(event string, l *Listener, err error) {
	var perr *PanicError
	if errors.As(err, &perr) {
		h.logger.Error("event listener panicked",
			"event", event,
			"listener_id", l.id,
			"panic", fmt.Sprint(perr.Value),
			"stack", string(perr.Stack))
		return
	}
	h.logger.Error("event listener failed",
		"event", event,
		"listener_id", l.id,
		"error", err)
}
