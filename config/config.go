// Package config provides configuration management for sigflow.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for sigflow.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Pool is the shared task pool configuration.
	Pool PoolConfig `mapstructure:"pool"`

	// Worker is the background worker configuration.
	Worker WorkerConfig `mapstructure:"worker"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// PoolConfig holds the shared task pool settings.
type PoolConfig struct {
	// Workers is the number of pool goroutines. Zero means one per CPU.
	Workers int `mapstructure:"workers" validate:"min=0"`
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	// ShutdownTimeout bounds how long a graceful stop waits for the
	// worker's queue to drain before the caller gives up waiting.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// QueueWarnDepth logs a warning when a worker's backlog exceeds this
	// many pending tasks. Zero disables the warning.
	QueueWarnDepth int `mapstructure:"queue_warn_depth" validate:"min=0"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Endpoint is the OTLP collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`

	// Insecure disables TLS on the collector connection.
	Insecure bool `mapstructure:"insecure"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Env: %s, PoolWorkers: %d}",
		c.App.Name, c.App.Environment, c.Pool.Workers)
}
