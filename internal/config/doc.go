// Package config loads the agent's settings from defaults, an optional YAML
// file and TRACECORE_-prefixed environment variables, then validates them
// before any component is constructed.
package config
