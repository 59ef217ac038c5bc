package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abyss-go/abyss/internal/api/models"
)

// Health godoc
// @Summary Health check
// @Description Returns server liveness status
// @Tags system
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Router /healthz [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Stats godoc
// @Summary Server statistics
// @Description Returns the TelemetryHub snapshot and process uptime
// @Tags system
// @Produce json
// @Success 200 {object} models.StatsResponse
// @Security ApiKeyAuth
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	uptime := time.Since(h.startTime)
	snap := h.controller.Stats()

	c.JSON(http.StatusOK, models.StatsResponse{
		Uptime:             uptime.Round(time.Second).String(),
		UptimeSeconds:      int64(uptime.Seconds()),
		ConnectionsActive:  snap.ConnectionsActive,
		ConnectionsTotal:   snap.ConnectionsTotal,
		AcceptsTotal:       snap.AcceptsTotal,
		ResponsesTotal:     snap.ResponsesTotal,
		DroppedTotal:       snap.DroppedTotal,
		AcceptsPerSecond:   snap.AcceptsPerSecond,
		ResponsesPerSecond: snap.ResponsesPerSecond,
		StartedAt:          h.startTime,
	})
}
