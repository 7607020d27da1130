package task

import "errors"

// ErrInterrupted is returned by interrupt checks built with SignalInterrupt
// once the host has received one of the watched signals.
var ErrInterrupted = errors.New("scheduler interrupted")
