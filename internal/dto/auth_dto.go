package dto

import "encoding/json"

type MagicLinkRequest struct {
	Email string `json:"email" binding:"required"`
}

type TokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// BeginPasskeyLoginRequest 中 Email 可为空，为空时走 discoverable 登录。
type BeginPasskeyLoginRequest struct {
	Email string `json:"email"`
}

type FinishPasskeyLoginRequest struct {
	SessionID  string          `json:"session_id" binding:"required"`
	Credential json.RawMessage `json:"credential" binding:"required"`
}

type LoginResponse struct {
	Message string `json:"message"`
	UserID  uint   `json:"user_id"`
	Email   string `json:"email"`
}

type MeResponse struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
}
