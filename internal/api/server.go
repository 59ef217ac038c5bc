// Package api provides the management REST API for an abyss Server: health,
// stats, suspend, and resume over HTTP, independent of the UDP datagram path
// it supervises. It is a Gin-based sidecar, wired to a Server only through
// the handlers.Controller interface so this package never imports the root
// module.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abyss-go/abyss/internal/api/handlers"
	"github.com/abyss-go/abyss/internal/api/middleware"
	"github.com/abyss-go/abyss/internal/config"
)

// Server is the management REST API server.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds a Server wired to controller, which is typically an
// *abyss.Server (it satisfies handlers.Controller structurally).
func New(cfg *config.Config, logger *slog.Logger, controller handlers.Controller) *Server {
	if cfg == nil {
		panic("api.New: cfg is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))

	h := handlers.New(controller, logger)
	RegisterRoutes(engine, h, cfg)

	if cfg.API.StaticDir != "" {
		MountStatic(engine, cfg.API.StaticDir, logger)
	}

	addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{cfg: cfg, logger: logger, engine: engine, httpServer: httpServer}
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

// Engine exposes the underlying gin.Engine, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// ListenAndServe blocks serving the management API until Shutdown is called.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the management API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
