package exporter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMetadata() Metadata {
	return Metadata{
		Language:        "go",
		LanguageVersion: "1.23.0",
		Interpreter:     "gc",
		TracerVersion:   "0.1.0",
	}
}

func TestNew(t *testing.T) {
	testCases := []struct {
		name     string
		url      string
		meta     Metadata
		wantErr  error
		wantHost string
		wantPort int
	}{
		{
			name:     "valid",
			url:      "http://localhost:8126",
			meta:     testMetadata(),
			wantHost: "localhost",
			wantPort: 8126,
		},
		{
			name:     "ipv6 host",
			url:      "http://[::1]:8126",
			meta:     testMetadata(),
			wantHost: "::1",
			wantPort: 8126,
		},
		{
			name:    "malformed url",
			url:     "http://local host:8126",
			meta:    testMetadata(),
			wantErr: ErrInvalidURL,
		},
		{
			name:    "unsupported scheme",
			url:     "unix:///var/run/agent.sock",
			meta:    testMetadata(),
			wantErr: ErrInvalidURL,
		},
		{
			name:    "missing host",
			url:     "http://:8126",
			meta:    testMetadata(),
			wantErr: ErrInvalidHost,
		},
		{
			name:    "missing port",
			url:     "http://localhost",
			meta:    testMetadata(),
			wantErr: ErrInvalidPort,
		},
		{
			name:    "port out of range",
			url:     "http://localhost:70000",
			meta:    testMetadata(),
			wantErr: ErrInvalidPort,
		},
		{
			name:    "missing metadata",
			url:     "http://localhost:8126",
			meta:    Metadata{Language: "go"},
			wantErr: ErrInvalidMetadata,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			exp, err := New(tc.url, tc.meta)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, exp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantHost, exp.Host())
			assert.Equal(t, tc.wantPort, exp.Port())
		})
	}
}

func TestExporter_Send(t *testing.T) {
	var gotReq *http.Request
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rate_by_service":{}}`))
	}))
	defer server.Close()

	exp, err := New(server.URL, testMetadata(), WithHTTPClient(server.Client()))
	require.NoError(t, err)

	resp, err := exp.Send(context.Background(), []byte{0x91, 0x90}, 1)
	require.NoError(t, err)

	assert.Equal(t, `{"rate_by_service":{}}`, string(resp))
	require.NotNil(t, gotReq)
	assert.Equal(t, http.MethodPut, gotReq.Method)
	assert.Equal(t, TracesPath, gotReq.URL.Path)
	assert.Equal(t, []byte{0x91, 0x90}, gotBody)
	assert.Equal(t, "application/msgpack", gotReq.Header.Get("Content-Type"))
	assert.Equal(t, "go", gotReq.Header.Get("Datadog-Meta-Lang"))
	assert.Equal(t, "1.23.0", gotReq.Header.Get("Datadog-Meta-Lang-Version"))
	assert.Equal(t, "gc", gotReq.Header.Get("Datadog-Meta-Lang-Interpreter"))
	assert.Equal(t, "0.1.0", gotReq.Header.Get("Datadog-Meta-Tracer-Version"))
	assert.Equal(t, "1", gotReq.Header.Get("X-Datadog-Trace-Count"))
}

func TestExporter_Send_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = w.Write([]byte("payload too large"))
	}))
	defer server.Close()

	exp, err := New(server.URL, testMetadata())
	require.NoError(t, err)

	resp, err := exp.Send(context.Background(), []byte("x"), 3)
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExportFailed)

	var exportErr *ExportError
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, exportErr.StatusCode)
	assert.Equal(t, "payload too large", string(exportErr.Body))
}

func TestExporter_Send_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	exp, err := New(url, testMetadata())
	require.NoError(t, err)

	_, err = exp.Send(context.Background(), []byte("x"), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExportFailed)
}
