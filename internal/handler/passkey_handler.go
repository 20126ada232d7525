package handler

import (
	"net/http"
	"strconv"

	"stop-spying-server/internal/common/httpx"
	"stop-spying-server/internal/dto"
	"stop-spying-server/internal/middleware"
	"stop-spying-server/internal/usecase/app"

	"github.com/gin-gonic/gin"
)

func currentIdentity(c *gin.Context) (*app.Identity, bool) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "获取用户信息失败"})
		return nil, false
	}
	return identity, true
}

func passkeyIDParam(c *gin.Context) (uint, bool) {
	passkeyID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || passkeyID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id 参数错误"})
		return 0, false
	}
	return uint(passkeyID), true
}

// BeginPasskeyRegistration 为当前登录用户发起 Passkey 绑定挑战。
func (h *Handler) BeginPasskeyRegistration(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	sessionID, creation, err := h.passkey.BeginPasskeyRegistration(c.Request.Context(), identity)
	if err != nil {
		httpx.WriteServiceError(c, err, "创建 Passkey 注册挑战失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"options":    creation,
	})
}

// FinishPasskeyRegistration 完成当前用户的 Passkey 绑定流程。
func (h *Handler) FinishPasskeyRegistration(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req dto.FinishPasskeyRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}

	passkey, err := h.passkey.FinishPasskeyRegistration(c.Request.Context(), identity, req.SessionID, req.Name, req.Credential)
	if err != nil {
		httpx.WriteServiceError(c, err, "Passkey 绑定失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Passkey 绑定成功",
		"passkey": passkey,
	})
}

// ListPasskeys 获取当前用户已绑定的 Passkey 列表。
func (h *Handler) ListPasskeys(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	passkeys, err := h.passkey.ListPasskeys(c.Request.Context(), identity)
	if err != nil {
		httpx.WriteServiceError(c, err, "获取 Passkey 列表失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": passkeys})
}

// RenamePasskey 修改当前用户指定 Passkey 的名称。
func (h *Handler) RenamePasskey(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	passkeyID, ok := passkeyIDParam(c)
	if !ok {
		return
	}

	var req dto.RenamePasskeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}

	if err := h.passkey.RenamePasskey(c.Request.Context(), identity, passkeyID, req.Name); err != nil {
		httpx.WriteServiceError(c, err, "修改 Passkey 名称失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Passkey 名称已更新"})
}

// DeletePasskey 删除当前用户指定 ID 的 Passkey。
func (h *Handler) DeletePasskey(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	passkeyID, ok := passkeyIDParam(c)
	if !ok {
		return
	}

	if err := h.passkey.DeletePasskey(c.Request.Context(), identity, passkeyID); err != nil {
		httpx.WriteServiceError(c, err, "删除 Passkey 失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Passkey 已删除"})
}
