package router

import (
	"stop-spying-server/internal/handler"

	"github.com/gin-gonic/gin"
)

func registerAuthRoutes(api *gin.RouterGroup, authLimiter gin.HandlerFunc, sessionAuth gin.HandlerFunc, h *handler.Handler) {
	api.POST("/auth/magic-link", authLimiter, h.RequestMagicLink)
	api.POST("/auth/magic-link/verify", authLimiter, h.VerifyMagicLink)
	api.POST("/auth/passkey/login/start", authLimiter, h.BeginPasskeyLogin)
	api.POST("/auth/passkey/login/finish", authLimiter, h.FinishPasskeyLogin)

	api.POST("/auth/logout", h.Logout)
	api.GET("/auth/me", sessionAuth, h.Me)
}
