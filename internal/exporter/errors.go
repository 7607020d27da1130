package exporter

import (
	"errors"
	"fmt"
)

// Configuration errors returned by New.
var (
	ErrInvalidURL      = errors.New("invalid intake url")
	ErrInvalidHost     = errors.New("invalid host")
	ErrInvalidPort     = errors.New("invalid port")
	ErrInvalidMetadata = errors.New("invalid exporter metadata")
)

// ErrExportFailed is matched by every ExportError.
var ErrExportFailed = errors.New("trace export failed")

// ExportError reports a non-2xx response from the intake.
type ExportError struct {
	StatusCode int
	Body       []byte
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("trace export failed: status %d", e.StatusCode)
}

// Is reports ErrExportFailed as a match so callers can use errors.Is.
func (e *ExportError) Is(target error) bool {
	return target == ErrExportFailed
}
