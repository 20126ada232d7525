package handler

import (
	"errors"
	"io"
	"net/http"

	"stop-spying-server/internal/common/httpx"
	"stop-spying-server/internal/dto"
	"stop-spying-server/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RequestMagicLink 向邮箱发送一次性登录链接。
func (h *Handler) RequestMagicLink(c *gin.Context) {
	var req dto.MagicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}

	email, err := h.auth.RequestMagicLink(c.Request.Context(), req.Email)
	if err != nil {
		httpx.WriteServiceError(c, err, "登录邮件发送失败，请稍后重试")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "登录链接已发送，请查收邮件",
		"email":   email,
	})
}

// VerifyMagicLink 消费登录令牌并下发会话 Cookie。
func (h *Handler) VerifyMagicLink(c *gin.Context) {
	var req dto.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}

	result, err := h.auth.VerifyMagicLink(c.Request.Context(), req.Token, sessionMetadata(c))
	if err != nil {
		httpx.WriteServiceError(c, err, "认证失败")
		return
	}

	h.setSessionCookie(c, result.SignedSession, result.MaxAge)
	c.JSON(http.StatusOK, dto.LoginResponse{Message: "登录成功", UserID: result.User.ID, Email: result.User.Email})
}

// Logout 删除当前会话并清除 Cookie；没有会话时同样返回成功。
func (h *Handler) Logout(c *gin.Context) {
	if signed, err := c.Cookie(h.cookie.Name); err == nil && signed != "" {
		if err := h.auth.Logout(c.Request.Context(), signed); err != nil {
			httpx.WriteServiceError(c, err, "登出失败")
			return
		}
	}

	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "已登出"})
}

// Me 返回当前登录用户。
func (h *Handler) Me(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "需要认证才能访问"})
		return
	}
	c.JSON(http.StatusOK, dto.MeResponse{UserID: identity.User.ID, Email: identity.User.Email})
}

// BeginPasskeyLogin 创建 Passkey 登录挑战并返回会话 ID。
func (h *Handler) BeginPasskeyLogin(c *gin.Context) {
	var req dto.BeginPasskeyLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}

	sessionID, assertion, err := h.passkey.BeginPasskeyLogin(c.Request.Context(), req.Email)
	if err != nil {
		httpx.WriteServiceError(c, err, "创建 Passkey 登录挑战失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"options":    assertion,
	})
}

// FinishPasskeyLogin 完成 Passkey 登录校验并下发会话 Cookie。
func (h *Handler) FinishPasskeyLogin(c *gin.Context) {
	var req dto.FinishPasskeyLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}

	result, err := h.passkey.FinishPasskeyLogin(c.Request.Context(), req.SessionID, req.Credential, sessionMetadata(c))
	if err != nil {
		httpx.WriteServiceError(c, err, "认证失败")
		return
	}

	h.setSessionCookie(c, result.SignedSession, result.MaxAge)
	c.JSON(http.StatusOK, dto.LoginResponse{Message: "登录成功", UserID: result.User.ID, Email: result.User.Email})
}
