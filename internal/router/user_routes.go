package router

import (
	"stop-spying-server/internal/handler"

	"github.com/gin-gonic/gin"
)

func registerUserRoutes(api *gin.RouterGroup, sessionAuth gin.HandlerFunc, h *handler.Handler) {
	userGroup := api.Group("/user")
	userGroup.Use(sessionAuth)
	{
		userGroup.POST("/passkeys/register/start", h.BeginPasskeyRegistration)
		userGroup.POST("/passkeys/register/finish", h.FinishPasskeyRegistration)
		userGroup.GET("/passkeys", h.ListPasskeys)
		userGroup.PATCH("/passkeys/:id", h.RenamePasskey)
		userGroup.DELETE("/passkeys/:id", h.DeletePasskey)
	}
}
