package handler

import (
	"time"

	"stop-spying-server/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) setSessionCookie(c *gin.Context, signed string, maxAge time.Duration) {
	c.SetSameSite(h.cookie.SameSite)
	c.SetCookie(h.cookie.Name, signed, int(maxAge.Seconds()), h.cookie.Path, "", h.cookie.Secure, h.cookie.HTTPOnly)
}

func (h *Handler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(h.cookie.SameSite)
	c.SetCookie(h.cookie.Name, "", -1, h.cookie.Path, "", h.cookie.Secure, h.cookie.HTTPOnly)
}

func sessionMetadata(c *gin.Context) service.SessionMetadata {
	return service.SessionMetadata{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	}
}
