package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads.
const EnvPrefix = "TRACECORE"

// ErrValidation is returned when the loaded values fail struct validation.
var ErrValidation = errors.New("configuration validation failed")

// envKeys lists every key bound explicitly so that values present only in the
// environment are seen by Unmarshal.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"scheduler.tick",
	"scheduler.auto_start",
	"scheduler.heartbeat_interval",
	"scheduler.flush_interval",
	"scheduler.handle_signals",
	"events.raise_on_error",
	"exporter.intake_url",
	"exporter.timeout",
	"exporter.tracer_version",
	"status.enabled",
	"status.port",
}

// Load reads config.yaml from the working directory if one exists, then
// applies environment overrides. Environment variables take precedence over
// values from the file.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFile is like Load but reads the YAML file at path, which must exist.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("scheduler.tick", 100*time.Millisecond)
	v.SetDefault("scheduler.auto_start", true)
	v.SetDefault("scheduler.heartbeat_interval", 10*time.Second)
	v.SetDefault("scheduler.flush_interval", time.Second)
	v.SetDefault("scheduler.handle_signals", true)
	v.SetDefault("events.raise_on_error", false)
	v.SetDefault("exporter.intake_url", "")
	v.SetDefault("exporter.timeout", 5*time.Second)
	v.SetDefault("exporter.tracer_version", "0.1.0")
	v.SetDefault("status.enabled", true)
	v.SetDefault("status.port", 8126)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	for _, key := range envKeys {
		envVar := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envVar); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", envVar, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return &cfg, nil
}
