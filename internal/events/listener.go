package events

import (
	"context"

	"github.com/google/uuid"
)

// Func is the body of a listener. Named listeners receive the dispatch
// arguments; global listeners receive the event name followed by the
// dispatch arguments as a single []any.
type Func func(ctx context.Context, args ...any) (any, error)

// Listener is a registered callable. Registration, deduplication and removal
// all use the pointer as identity, so the same *Listener registered twice under
// one event name runs once per dispatch.
type Listener struct {
	id uuid.UUID
	fn Func
}

// NewListener wraps fn in a new Listener with a fresh identity.
func NewListener(fn Func) *Listener {
	return &Listener{
		id: uuid.New(),
		fn: fn,
	}
}

// ListenerFunc adapts a function that returns nothing but an error.
func ListenerFunc(fn func(ctx context.Context, args ...any) error) *Listener {
	return NewListener(func(ctx context.Context, args ...any) (any, error) {
		return nil, fn(ctx, args...)
	})
}

// ID returns the listener's unique identifier, used in logs and status output.
func (l *Listener) ID() uuid.UUID {
	return l.id
}
