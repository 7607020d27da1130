package exporter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// TracesPath is the intake endpoint traces are sent to.
const TracesPath = "/v0.4/traces"

// Global validator instance for reuse
var validate = validator.New()

// Metadata describes the library producing the payloads. It is sent as
// headers with every request.
type Metadata struct {
	Language        string `validate:"required"`
	LanguageVersion string `validate:"required"`
	Interpreter     string `validate:"required"`
	TracerVersion   string `validate:"required"`
}

// Exporter sends payloads to a single intake endpoint.
type Exporter struct {
	endpoint string
	host     string
	port     int
	meta     Metadata
	client   *http.Client
	logger   *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Exporter) {
		if client != nil {
			e.client = client
		}
	}
}

// WithLogger sets the exporter's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New builds an Exporter for intakeURL, which must carry an explicit host and
// port (for example http://localhost:8126).
func New(intakeURL string, meta Metadata, opts ...Option) (*Exporter, error) {
	u, err := url.Parse(intakeURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, ErrInvalidHost
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPort, u.Port())
	}

	if err := validate.Struct(meta); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}

	e := &Exporter{
		endpoint: (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: TracesPath}).String(),
		host:     host,
		port:     port,
		meta:     meta,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "trace_exporter", "endpoint", e.endpoint)
	return e, nil
}

// Host returns the intake host.
func (e *Exporter) Host() string { return e.host }

// Port returns the intake port.
func (e *Exporter) Port() int { return e.port }

// Send delivers payload, which encodes recordCount traces, and returns the
// intake's response body.
func (e *Exporter) Send(ctx context.Context, payload []byte, recordCount int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build export request: %w", err)
	}

	req.Header.Set("Content-Type", "application/msgpack")
	req.Header.Set("Datadog-Meta-Lang", e.meta.Language)
	req.Header.Set("Datadog-Meta-Lang-Version", e.meta.LanguageVersion)
	req.Header.Set("Datadog-Meta-Lang-Interpreter", e.meta.Interpreter)
	req.Header.Set("Datadog-Meta-Tracer-Version", e.meta.TracerVersion)
	req.Header.Set("X-Datadog-Trace-Count", strconv.Itoa(recordCount))

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send traces: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read intake response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.logger.Warn("intake rejected payload",
			"status_code", resp.StatusCode,
			"trace_count", recordCount)
		return nil, &ExportError{StatusCode: resp.StatusCode, Body: body}
	}

	e.logger.Debug("payload sent",
		"bytes", len(payload),
		"trace_count", recordCount)
	return body, nil
}
