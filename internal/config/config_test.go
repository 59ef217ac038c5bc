package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct{}

func TestWorkerSettingString(t *testing.T) {
	tests := []struct {
		name string
		ws   WorkerSetting
		want string
	}{
		{"unbounded mode", WorkerSetting{Mode: WorkersUnbounded}, "unbounded"},
		{"fixed mode 4", WorkerSetting{Mode: WorkersFixed, Value: 4}, "4"},
		{"fixed mode 0", WorkerSetting{Mode: WorkersFixed, Value: 0}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ws.String()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		envValue string
		want     string
	}{
		{"flag takes precedence", "/path/from/flag", "/path/from/env", "/path/from/flag"},
		{"env when no flag", "", "/path/from/env", "/path/from/env"},
		{"empty when neither", "", "", ""},
		{"whitespace flag", "  ", "/path/from/env", "/path/from/env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ABYSS_CONFIG", tt.envValue)
			got := ResolveConfigPath(tt.flag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 0, cfg.Server.Port)
	assert.Equal(t, WorkersUnbounded, cfg.Server.MaxWorkers.Mode)
	assert.Equal(t, 1, cfg.Server.NumListeners)
	assert.Equal(t, 3, cfg.Server.RetryCount)
	assert.Equal(t, 65507, cfg.Server.MaxPacketSize)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.InDelta(t, 0.1, cfg.Telemetry.SampleRate, 0.0001)
	assert.Equal(t, 256, cfg.Memory.WarnMB)
	assert.Equal(t, 512, cfg.Memory.HardMB)
}

func TestLoadFromFile(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 5353
  max_workers: "32"
  broadcast: true

rate_limit:
  enabled: true
  max_packets: 10
  window_ms: 500

logging:
  level: "DEBUG"
  structured: true
  structured_format: "keyvalue"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 5353, cfg.Server.Port)
	assert.True(t, cfg.Server.Broadcast)
	assert.Equal(t, WorkersFixed, cfg.Server.MaxWorkers.Mode)
	assert.Equal(t, 32, cfg.Server.MaxWorkers.Value)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 10, cfg.RateLimit.MaxPackets)
	assert.Equal(t, 500, cfg.RateLimit.WindowMs)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Structured)
	assert.Equal(t, "keyvalue", cfg.Logging.StructuredFormat)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: [invalid"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadZeroMaxWorkersIsFixedNotUnbounded(t *testing.T) {
	content := `
server:
  max_workers: "0"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, WorkersFixed, cfg.Server.MaxWorkers.Mode)
	assert.Equal(t, 0, cfg.Server.MaxWorkers.Value)
}

func TestLoadInvalidMaxWorkersFallsBackToUnbounded(t *testing.T) {
	content := `
server:
  max_workers: "invalid"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, WorkersUnbounded, cfg.Server.MaxWorkers.Mode)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ABYSS_SERVER_HOST", "192.168.1.1")
	t.Setenv("ABYSS_SERVER_PORT", "8053")
	t.Setenv("ABYSS_SERVER_MAX_WORKERS", "8")
	t.Setenv("ABYSS_RATE_LIMIT_ENABLED", "true")
	t.Setenv("ABYSS_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", cfg.Server.Host)
	assert.Equal(t, 8053, cfg.Server.Port)
	assert.Equal(t, WorkersFixed, cfg.Server.MaxWorkers.Mode)
	assert.Equal(t, 8, cfg.Server.MaxWorkers.Value)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func validConfig() *Config {
	cfg, _ := Load("")
	cfg.Handler = stubHandler{}
	return cfg
}

func TestValidateRequiresHandler(t *testing.T) {
	cfg := validConfig()
	cfg.Handler = nil
	err := Validate(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 70000
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsNonPositiveRetryBaseWait(t *testing.T) {
	cfg := validConfig()
	cfg.Server.RetryBaseWaitMs = 0
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsSampleRateOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.SampleRate = 1.5
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsCrossedMemoryThresholds(t *testing.T) {
	cfg := validConfig()
	cfg.Memory.WarnMB = 512
	cfg.Memory.HardMB = 256
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsEnabledRateLimitWithZeroWindow(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.WindowMs = 0
	assert.Error(t, Validate(cfg))
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, Validate(cfg))
}
