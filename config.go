package abyss

import "github.com/abyss-go/abyss/internal/config"

// Config is the root configuration for a Server, loaded from an optional
// YAML file overlaid with ABYSS_*-prefixed environment variables.
type Config = config.Config

// ServerConfig, RateLimitConfig, TelemetryConfig, MemoryGuardConfig,
// LoggingConfig, and APIConfig are the Config's constituent sections.
type (
	ServerConfig      = config.ServerConfig
	RateLimitConfig   = config.RateLimitConfig
	TelemetryConfig   = config.TelemetryConfig
	MemoryGuardConfig = config.MemoryGuardConfig
	LoggingConfig     = config.LoggingConfig
	APIConfig         = config.APIConfig
	WorkerSetting     = config.WorkerSetting
)

const (
	WorkersUnbounded = config.WorkersUnbounded
	WorkersFixed     = config.WorkersFixed
)

// LoadConfig loads configuration from an optional YAML file with
// environment variable overrides. Pass "" to skip the file and use
// defaults plus environment only.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ResolveConfigPath determines the config file path from a CLI flag value,
// falling back to ABYSS_CONFIG, then to no file at all.
func ResolveConfigPath(flagValue string) string {
	return config.ResolveConfigPath(flagValue)
}

// ValidateConfig enforces every invariant spec'd for a Config: a Handler
// must be attached, numeric bounds must be positive, sample_rate must fall
// in [0,1], and memory warn/hard thresholds (if both set) must be ordered.
func ValidateConfig(cfg *Config) error {
	return config.Validate(cfg)
}
