// Package handlers implements the REST API endpoint handlers for the abyss
// management API.
//
// @title abyss Management API
// @version 1.0
// @description REST API for observing and controlling a running abyss Server.
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/abyss-go/abyss/internal/telemetry"
)

// Controller is the subset of Server's public API the management endpoints
// need. It exists so this package depends on an interface rather than the
// root abyss package, keeping the import graph one-directional.
type Controller interface {
	Stats() telemetry.Snapshot
	Suspend() error
	Resume(ctx context.Context) error
}

// Handler contains dependencies for API handlers.
type Handler struct {
	controller Controller
	logger     *slog.Logger
	startTime  time.Time
}

// New creates a Handler backed by the given Controller.
func New(controller Controller, logger *slog.Logger) *Handler {
	return &Handler{
		controller: controller,
		logger:     logger,
		startTime:  time.Now(),
	}
}
