package dto

import "encoding/json"

type FinishPasskeyRegistrationRequest struct {
	SessionID  string          `json:"session_id" binding:"required"`
	Name       string          `json:"name"`
	Credential json.RawMessage `json:"credential" binding:"required"`
}

type RenamePasskeyRequest struct {
	Name string `json:"name" binding:"required"`
}
