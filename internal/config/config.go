// Package config provides configuration loading and validation for the abyss
// datagram server framework.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Environment variables (ABYSS_* prefix)
//  2. YAML config file (if specified)
//  3. Hardcoded defaults
//
// Environment variables are mapped from ABYSS_CATEGORY_SETTING format,
// e.g., ABYSS_SERVER_PORT maps to server.port in YAML.
//
// Load does not validate: the Handler is attached by the caller after
// loading, and Validate is run afterwards (Server.Start runs it before any
// socket is opened).
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ABYSS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 0)
	v.SetDefault("server.broadcast", false)
	v.SetDefault("server.num_listeners", 1)
	v.SetDefault("server.max_workers", "unbounded")
	v.SetDefault("server.retry_count", 3)
	v.SetDefault("server.retry_base_wait_ms", 50)
	v.SetDefault("server.read_timeout_ms", 5000)
	v.SetDefault("server.shutdown_timeout_ms", 5000)
	v.SetDefault("server.silent_terminate_on_error", false)
	v.SetDefault("server.max_packet_size", 65507)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.max_packets", 100)
	v.SetDefault("rate_limit.window_ms", 1000)

	v.SetDefault("telemetry.sample_rate", 0.1)

	v.SetDefault("memory.check_interval_ms", 30000)
	v.SetDefault("memory.warn_mb", 256)
	v.SetDefault("memory.hard_mb", 512)

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.api_key", "")
	v.SetDefault("api.static_dir", "")
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadServerConfig(v, cfg)
	loadRateLimitConfig(v, cfg)
	loadTelemetryConfig(v, cfg)
	loadMemoryConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	loadAPIConfig(v, cfg)

	normalizeConfig(cfg)

	return cfg, nil
}

func loadServerConfig(v *viper.Viper, cfg *Config) {
	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.Broadcast = v.GetBool("server.broadcast")
	cfg.Server.NumListeners = v.GetInt("server.num_listeners")
	cfg.Server.RetryCount = v.GetInt("server.retry_count")
	cfg.Server.RetryBaseWaitMs = v.GetInt("server.retry_base_wait_ms")
	cfg.Server.ReadTimeoutMs = v.GetInt("server.read_timeout_ms")
	cfg.Server.ShutdownTimeoutMs = v.GetInt("server.shutdown_timeout_ms")
	cfg.Server.SilentTerminate = v.GetBool("server.silent_terminate_on_error")
	cfg.Server.MaxPacketSize = v.GetInt("server.max_packet_size")
	cfg.Server.MaxWorkersRaw = v.GetString("server.max_workers")
	cfg.Server.MaxWorkers = parseMaxWorkers(cfg.Server.MaxWorkersRaw)
}

func loadRateLimitConfig(v *viper.Viper, cfg *Config) {
	cfg.RateLimit.Enabled = v.GetBool("rate_limit.enabled")
	cfg.RateLimit.MaxPackets = v.GetInt("rate_limit.max_packets")
	cfg.RateLimit.WindowMs = v.GetInt("rate_limit.window_ms")
}

func loadTelemetryConfig(v *viper.Viper, cfg *Config) {
	cfg.Telemetry.SampleRate = v.GetFloat64("telemetry.sample_rate")
}

func loadMemoryConfig(v *viper.Viper, cfg *Config) {
	cfg.Memory.CheckIntervalMs = v.GetInt("memory.check_interval_ms")
	cfg.Memory.WarnMB = v.GetInt("memory.warn_mb")
	cfg.Memory.HardMB = v.GetInt("memory.hard_mb")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadAPIConfig(v *viper.Viper, cfg *Config) {
	cfg.API.Enabled = v.GetBool("api.enabled")
	cfg.API.Host = v.GetString("api.host")
	cfg.API.Port = v.GetInt("api.port")
	cfg.API.APIKey = v.GetString("api.api_key")
	cfg.API.StaticDir = v.GetString("api.static_dir")
}

// parseMaxWorkers converts the max_workers string to a WorkerSetting.
//
// "unbounded" (or empty) means no cap; any non-negative integer fixes the
// cap, including 0, which is a real zero-capacity cap (every datagram is
// dropped with limit_exceeded) rather than a synonym for unbounded.
func parseMaxWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "unbounded" {
		return WorkerSetting{Mode: WorkersUnbounded}
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersUnbounded}
}

// normalizeConfig fills in defaults Viper couldn't express directly.
func normalizeConfig(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.Server.NumListeners <= 0 {
		cfg.Server.NumListeners = 1
	}
}

// Validate enforces the invariants a Config must satisfy before a Server can
// be constructed from it: a handler must be present, declared bounds must be
// positive where required, the telemetry sample rate must be in range, and
// the memory thresholds must not cross.
func Validate(cfg *Config) error {
	if cfg.Handler == nil {
		return fmt.Errorf("%w: handler is required", ErrInvalidConfig)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port must be 0..65535", ErrInvalidConfig)
	}
	if cfg.Server.NumListeners < 1 {
		return fmt.Errorf("%w: server.num_listeners must be >= 1", ErrInvalidConfig)
	}
	if cfg.Server.MaxWorkers.Mode == WorkersFixed && cfg.Server.MaxWorkers.Value < 0 {
		return fmt.Errorf("%w: server.max_workers must be >= 0 or unbounded", ErrInvalidConfig)
	}
	if cfg.Server.RetryCount < 0 {
		return fmt.Errorf("%w: server.retry_count must be >= 0", ErrInvalidConfig)
	}
	if cfg.Server.RetryBaseWaitMs <= 0 {
		return fmt.Errorf("%w: server.retry_base_wait_ms must be > 0", ErrInvalidConfig)
	}
	if cfg.Server.MaxPacketSize <= 0 {
		return fmt.Errorf("%w: server.max_packet_size must be > 0", ErrInvalidConfig)
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.MaxPackets <= 0 {
			return fmt.Errorf("%w: rate_limit.max_packets must be > 0", ErrInvalidConfig)
		}
		if cfg.RateLimit.WindowMs <= 0 {
			return fmt.Errorf("%w: rate_limit.window_ms must be > 0", ErrInvalidConfig)
		}
	}
	if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
		return fmt.Errorf("%w: telemetry.sample_rate must be in [0,1]", ErrInvalidConfig)
	}
	if cfg.Memory.WarnMB > 0 && cfg.Memory.HardMB > 0 && cfg.Memory.WarnMB >= cfg.Memory.HardMB {
		return fmt.Errorf("%w: memory.warn_mb must be < memory.hard_mb", ErrInvalidConfig)
	}
	if cfg.API.Enabled && (cfg.API.Port <= 0 || cfg.API.Port > 65535) {
		return fmt.Errorf("%w: api.port must be 1..65535", ErrInvalidConfig)
	}
	return nil
}
