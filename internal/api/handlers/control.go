package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abyss-go/abyss/internal/api/models"
)

// Suspend godoc
// @Summary Suspend listeners
// @Description Stops accepting new datagrams without tearing down in-flight workers
// @Tags control
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Failure 409 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /suspend [post]
func (h *Handler) Suspend(c *gin.Context) {
	if err := h.controller.Suspend(); err != nil {
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "suspended"})
}

// Resume godoc
// @Summary Resume listeners
// @Description Resumes accepting datagrams after a Suspend
// @Tags control
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Failure 409 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /resume [post]
func (h *Handler) Resume(c *gin.Context) {
	if err := h.controller.Resume(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "running"})
}
