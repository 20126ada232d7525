package handler

import (
	"math"
	"net/http"

	"stop-spying-server/internal/common"
	"stop-spying-server/internal/common/httpx"
	"stop-spying-server/internal/dto"

	"github.com/gin-gonic/gin"
)

// Health 检查数据库连通性。
func (h *Handler) Health(c *gin.Context) {
	stats, err := h.system.Health(c.Request.Context())
	if err != nil {
		httpx.WriteServiceError(c, err, "服务不可用")
		return
	}
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok", Stats: stats})
}

// Live 存活探针，不访问数据库。
func (h *Handler) Live(c *gin.Context) {
	uptime := math.Round(h.system.Uptime().Seconds()*100) / 100
	c.JSON(http.StatusOK, dto.LivenessResponse{Status: "alive", UptimeSeconds: uptime})
}

// Ready 就绪探针：数据库可达且表结构已迁移时返回 200，否则返回 503。
func (h *Handler) Ready(c *gin.Context) {
	if err := h.system.Ready(c.Request.Context()); err != nil {
		message := "服务未就绪"
		if serviceErr, ok := common.AsServiceError(err); ok {
			message = serviceErr.Message
		}
		c.JSON(http.StatusServiceUnavailable, dto.ReadinessResponse{Status: "not_ready", Error: message})
		return
	}
	c.JSON(http.StatusOK, dto.ReadinessResponse{Status: "ready"})
}

func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, h.system.Version())
}
