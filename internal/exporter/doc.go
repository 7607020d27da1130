// Package exporter ships encoded trace payloads to the agent intake. It is a
// passthrough: no batching and no retries. Callers hand it an already
// encoded payload plus the number of traces it contains.
package exporter
