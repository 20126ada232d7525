package middleware

import (
	"net/http"

	"stop-spying-server/internal/common/httpx"
	"stop-spying-server/internal/consts"
	"stop-spying-server/internal/usecase/app"

	"github.com/gin-gonic/gin"
)

// SessionAuth 从 Cookie 中读取签名会话，校验通过后把 *app.Identity 写入上下文。
func SessionAuth(authUC *app.AuthUseCase, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		signed, err := c.Cookie(cookieName)
		if err != nil || signed == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "需要认证才能访问"})
			c.Abort()
			return
		}

		identity, err := authUC.Authenticate(c.Request.Context(), signed)
		if err != nil {
			httpx.WriteServiceError(c, err, "认证失败")
			c.Abort()
			return
		}

		c.Set(consts.ContextIdentityKey, identity)
		c.Next()
	}
}

// IdentityFrom 取出 SessionAuth 写入的身份；未经过该中间件时返回 false。
func IdentityFrom(c *gin.Context) (*app.Identity, bool) {
	value, exists := c.Get(consts.ContextIdentityKey)
	if !exists {
		return nil, false
	}
	identity, ok := value.(*app.Identity)
	if !ok || identity == nil || identity.User == nil {
		return nil, false
	}
	return identity, true
}
