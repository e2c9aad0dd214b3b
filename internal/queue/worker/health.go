package worker

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler serves the worker's liveness and readiness probes.
func (w *Worker) HealthHandler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	})

	r.GET("/readyz", func(ctx *gin.Context) {
		if !w.Ready() {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}

		ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	return r
}
