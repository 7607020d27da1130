package main

import (
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Span is one finished unit of work recorded by the agent.
type Span struct {
	TraceID  uint64            `msgpack:"trace_id"`
	SpanID   uint64            `msgpack:"span_id"`
	ParentID uint64            `msgpack:"parent_id"`
	Name     string            `msgpack:"name"`
	Resource string            `msgpack:"resource"`
	Service  string            `msgpack:"service"`
	Start    int64             `msgpack:"start"`
	Duration int64             `msgpack:"duration"`
	Error    int32             `msgpack:"error"`
	Meta     map[string]string `msgpack:"meta,omitempty"`
}

// spanBuffer collects finished spans between flushes.
type spanBuffer struct {
	mu    sync.Mutex
	spans []Span
}

// Add appends s and returns the number of buffered spans.
func (b *spanBuffer) Add(s Span) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spans = append(b.spans, s)
	return len(b.spans)
}

// Drain removes and returns every buffered span.
func (b *spanBuffer) Drain() []Span {
	b.mu.Lock()
	defer b.mu.Unlock()
	spans := b.spans
	b.spans = nil
	return spans
}

// Len returns the number of buffered spans.
func (b *spanBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.spans)
}

// encodeTraces groups spans by trace ID, preserving first-seen order, and
// encodes them as a msgpack array of traces. It returns the payload and the
// number of traces in it.
func encodeTraces(spans []Span) ([]byte, int, error) {
	var (
		traces [][]Span
		index  = make(map[uint64]int)
	)
	for _, s := range spans {
		i, ok := index[s.TraceID]
		if !ok {
			i = len(traces)
			index[s.TraceID] = i
			traces = append(traces, nil)
		}
		traces[i] = append(traces[i], s)
	}

	payload, err := msgpack.Marshal(traces)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode traces: %w", err)
	}
	return payload, len(traces), nil
}
