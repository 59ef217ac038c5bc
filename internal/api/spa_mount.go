package api

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

// MountStatic serves a plain status page (or any static directory) from dir,
// falling back to index.html for any route outside /api and /swagger. This
// keeps the teacher's SPA-mount idiom without requiring an embedded UI
// bundle this repo doesn't build.
func MountStatic(r *gin.Engine, dir string, logger *slog.Logger) {
	fs := static.LocalFile(dir, false)
	r.Use(static.Serve("/", fs))

	index := filepath.Join(dir, "index.html")
	r.NoRoute(func(c *gin.Context) {
		uri := c.Request.RequestURI
		if strings.HasPrefix(uri, "/api") || strings.HasPrefix(uri, "/swagger") {
			return
		}
		c.File(index)
		if logger != nil {
			logger.Debug("served static fallback", "path", uri)
		}
	})
}
