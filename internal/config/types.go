// Package config provides configuration loading and validation for the abyss
// datagram server framework using Viper.
//
// Configuration is loaded from an optional YAML file with automatic
// environment variable binding. Environment variables use the ABYSS_ prefix
// and underscore-separated keys:
//
//	ABYSS_SERVER_PORT        -> server.port
//	ABYSS_SERVER_BROADCAST   -> server.broadcast
//	ABYSS_RATE_LIMIT_ENABLED -> rate_limit.enabled
package config

import (
	"os"
	"strconv"
	"strings"
)

// WorkersMode specifies how the worker cap is determined.
type WorkersMode int

const (
	// WorkersUnbounded means no cap is applied to concurrent workers.
	WorkersUnbounded WorkersMode = iota
	// WorkersFixed uses a specific worker cap.
	WorkersFixed
)

// WorkerSetting represents the max_workers configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

// String returns the string representation of the worker setting.
func (w WorkerSetting) String() string {
	if w.Mode == WorkersUnbounded {
		return "unbounded"
	}
	return strconv.Itoa(w.Value)
}

// ServerConfig contains socket and dispatch-related settings.
type ServerConfig struct {
	Host              string        `yaml:"host"                      mapstructure:"host"`
	Port              int           `yaml:"port"                      mapstructure:"port"`
	Broadcast         bool          `yaml:"broadcast"                 mapstructure:"broadcast"`
	NumListeners      int           `yaml:"num_listeners"             mapstructure:"num_listeners"`
	MaxWorkers        WorkerSetting `yaml:"-"                         mapstructure:"-"`
	MaxWorkersRaw     string        `yaml:"max_workers"               mapstructure:"max_workers"`
	RetryCount        int           `yaml:"retry_count"               mapstructure:"retry_count"`
	RetryBaseWaitMs   int           `yaml:"retry_base_wait_ms"        mapstructure:"retry_base_wait_ms"`
	ReadTimeoutMs     int           `yaml:"read_timeout_ms"           mapstructure:"read_timeout_ms"`
	ShutdownTimeoutMs int           `yaml:"shutdown_timeout_ms"       mapstructure:"shutdown_timeout_ms"`
	SilentTerminate   bool          `yaml:"silent_terminate_on_error" mapstructure:"silent_terminate_on_error"`
	MaxPacketSize     int           `yaml:"max_packet_size"           mapstructure:"max_packet_size"`
}

// RateLimitConfig controls the per-source token-bucket admission control.
type RateLimitConfig struct {
	Enabled    bool `yaml:"enabled"     mapstructure:"enabled"`
	MaxPackets int  `yaml:"max_packets" mapstructure:"max_packets"`
	WindowMs   int  `yaml:"window_ms"   mapstructure:"window_ms"`
}

// TelemetryConfig controls span sampling.
type TelemetryConfig struct {
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MemoryGuardConfig controls the Worker's periodic memory check.
type MemoryGuardConfig struct {
	CheckIntervalMs int `yaml:"check_interval_ms" mapstructure:"check_interval_ms"`
	WarnMB          int `yaml:"warn_mb"           mapstructure:"warn_mb"`
	HardMB          int `yaml:"hard_mb"           mapstructure:"hard_mb"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"`
}

// APIConfig contains management HTTP API settings.
type APIConfig struct {
	Enabled   bool   `yaml:"enabled"    mapstructure:"enabled"`
	Host      string `yaml:"host"       mapstructure:"host"`
	Port      int    `yaml:"port"       mapstructure:"port"`
	APIKey    string `yaml:"api_key"    mapstructure:"api_key"`
	StaticDir string `yaml:"static_dir" mapstructure:"static_dir"`
}

// Config is the root configuration structure for a Server.
//
// Handler is intentionally not loadable from YAML/env: it is supplied by the
// embedding application and attached by the caller before Validate runs.
type Config struct {
	Server    ServerConfig      `yaml:"server"     mapstructure:"server"`
	RateLimit RateLimitConfig   `yaml:"rate_limit" mapstructure:"rate_limit"`
	Telemetry TelemetryConfig   `yaml:"telemetry"  mapstructure:"telemetry"`
	Memory    MemoryGuardConfig `yaml:"memory"     mapstructure:"memory"`
	Logging   LoggingConfig     `yaml:"logging"    mapstructure:"logging"`
	API       APIConfig         `yaml:"api"        mapstructure:"api"`

	Handler any `yaml:"-" mapstructure:"-"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("ABYSS_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable overrides.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (ABYSS_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
