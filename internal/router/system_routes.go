package router

import (
	"stop-spying-server/internal/handler"
	"stop-spying-server/internal/metrics"

	"github.com/gin-gonic/gin"
)

func registerSystemRoutes(r *gin.Engine, api *gin.RouterGroup, h *handler.Handler, recorder *metrics.Recorder) {
	api.GET("/health", h.Health)
	api.GET("/health/live", h.Live)
	api.GET("/health/ready", h.Ready)
	api.GET("/version", h.Version)
	if recorder != nil {
		r.GET("/metrics", gin.WrapH(recorder.Handler()))
	}
}
