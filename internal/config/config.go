package config

import "time"

// Config holds all agent configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler" validate:"required"`
	Events    EventsConfig    `mapstructure:"events" yaml:"events"`
	Exporter  ExporterConfig  `mapstructure:"exporter" yaml:"exporter"`
	Status    StatusConfig    `mapstructure:"status" yaml:"status"`
}

// LoggingConfig controls the process-wide slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=json text"`
}

// SchedulerConfig controls the task loop and the built-in periodic tasks.
// A zero interval runs the task on every tick.
type SchedulerConfig struct {
	Tick              time.Duration `mapstructure:"tick" yaml:"tick" validate:"gt=0"`
	AutoStart         bool          `mapstructure:"auto_start" yaml:"auto_start"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval" validate:"gte=0"`
	FlushInterval     time.Duration `mapstructure:"flush_interval" yaml:"flush_interval" validate:"gte=0"`
	// HandleSignals stops the loop when SIGINT or SIGTERM is pending.
	HandleSignals bool `mapstructure:"handle_signals" yaml:"handle_signals"`
}

// EventsConfig controls hub dispatch behaviour.
type EventsConfig struct {
	RaiseOnError bool `mapstructure:"raise_on_error" yaml:"raise_on_error"`
}

// ExporterConfig points the flush task at a trace intake. An empty IntakeURL
// disables exporting.
type ExporterConfig struct {
	IntakeURL     string        `mapstructure:"intake_url" yaml:"intake_url" validate:"omitempty,url"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	TracerVersion string        `mapstructure:"tracer_version" yaml:"tracer_version" validate:"required"`
}

// StatusConfig controls the HTTP status surface.
type StatusConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"gt=0,lt=65536"`
}
