package events

import (
	"errors"
	"fmt"
)

// Common errors returned by the Hub
var (
	// ErrListenerFailed wraps the first listener error returned by Dispatch
	// when the hub raises on error.
	ErrListenerFailed = errors.New("event listener failed")

	// ErrListenerPanicked is matched by every PanicError.
	ErrListenerPanicked = errors.New("event listener panicked")
)

// PanicError records a panic recovered from a listener body.
type PanicError struct {
	Event string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("listener for event %q panicked: %v", e.Event, e.Value)
}

// Is reports ErrListenerPanicked as a match so callers can use errors.Is.
func (e *PanicError) Is(target error) bool {
	return target == ErrListenerPanicked
}
