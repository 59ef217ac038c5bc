package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abyss-go/abyss/internal/api"
	"github.com/abyss-go/abyss/internal/api/models"
	"github.com/abyss-go/abyss/internal/config"
	"github.com/abyss-go/abyss/internal/telemetry"
)

type stubController struct {
	snapshot   telemetry.Snapshot
	suspendErr error
	resumeErr  error
}

func (s *stubController) Stats() telemetry.Snapshot    { return s.snapshot }
func (s *stubController) Suspend() error                { return s.suspendErr }
func (s *stubController) Resume(context.Context) error   { return s.resumeErr }

func createTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "localhost", Port: 5353},
		API: config.APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
		},
	}
}

func performRequest(r http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewCreatesServer(t *testing.T) {
	server := api.New(createTestConfig(), nil, &stubController{})
	assert.NotNil(t, server)
}

func TestNewPanicsOnNilConfig(t *testing.T) {
	assert.Panics(t, func() {
		api.New(nil, nil, &stubController{})
	})
}

func TestServerAddr(t *testing.T) {
	cfg := createTestConfig()
	cfg.API.Host = "0.0.0.0"
	cfg.API.Port = 9090

	server := api.New(cfg, nil, &stubController{})
	assert.Equal(t, "0.0.0.0:9090", server.Addr())
}

func TestRoutesHealthEndpoint(t *testing.T) {
	server := api.New(createTestConfig(), nil, &stubController{})

	w := performRequest(server.Engine(), http.MethodGet, "/api/v1/healthz")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRoutesStatsEndpoint(t *testing.T) {
	server := api.New(createTestConfig(), nil, &stubController{snapshot: telemetry.Snapshot{ResponsesTotal: 7}})

	w := performRequest(server.Engine(), http.MethodGet, "/api/v1/stats")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Uptime)
	assert.EqualValues(t, 7, resp.ResponsesTotal)
}

func TestRoutesWithAPIKeyValidKey(t *testing.T) {
	cfg := createTestConfig()
	cfg.API.APIKey = "secret-key"
	server := api.New(cfg, nil, &stubController{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil)
	req.Header.Set("X-Api-Key", "secret-key")
	w := httptest.NewRecorder()
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutesWithAPIKeyMissingKey(t *testing.T) {
	cfg := createTestConfig()
	cfg.API.APIKey = "secret-key"
	server := api.New(cfg, nil, &stubController{})

	w := performRequest(server.Engine(), http.MethodGet, "/api/v1/healthz")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServerShutdownWithoutStart(t *testing.T) {
	cfg := createTestConfig()
	cfg.API.Port = 0
	server := api.New(cfg, nil, &stubController{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, server.Shutdown(ctx))
}

func TestRoutesSwaggerEndpoint(t *testing.T) {
	server := api.New(createTestConfig(), nil, &stubController{})

	w := performRequest(server.Engine(), http.MethodGet, "/swagger/index.html")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutesNotFound(t *testing.T) {
	server := api.New(createTestConfig(), nil, &stubController{})

	w := performRequest(server.Engine(), http.MethodGet, "/api/v1/nonexistent")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
