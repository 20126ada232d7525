package model

import "time"

// PasskeyCredential 保存绑定到用户的 WebAuthn 凭据。
// SignCount 是权威计数器；Credential 保存验签所需的其余元数据（JSON）。
type PasskeyCredential struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	UserID       uint       `json:"user_id" gorm:"not null;index"`
	CredentialID string     `json:"credential_id" gorm:"not null;uniqueIndex;size:255"`
	PublicKey    []byte     `json:"-" gorm:"not null"`
	SignCount    uint32     `json:"sign_count" gorm:"not null;default:0"`
	Name         string     `json:"name" gorm:"not null;size:100"`
	Credential   string     `json:"-" gorm:"type:text;not null"`
	LastUsedAt   *time.Time `json:"last_used_at"`
	User         User       `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE;" json:"-"`
}
