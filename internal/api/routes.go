package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/abyss-go/abyss/internal/api/handlers"
	"github.com/abyss-go/abyss/internal/api/middleware"
	"github.com/abyss-go/abyss/internal/config"
)

// RegisterRoutes wires the health, stats, suspend, and resume endpoints onto
// the engine's /api/v1 group, plus Swagger UI at /swagger/*.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	group := r.Group("/api/v1")

	if cfg != nil && cfg.API.APIKey != "" {
		group.Use(middleware.RequireAPIKey(cfg.API.APIKey))
	}

	group.GET("/healthz", h.Health)
	group.GET("/stats", h.Stats)
	group.POST("/suspend", h.Suspend)
	group.POST("/resume", h.Resume)
}
