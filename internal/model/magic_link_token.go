package model

import "time"

// MagicLinkToken 是一次性登录凭证，按邮箱而非用户 ID 关联（签发时用户可能尚不存在）。
type MagicLinkToken struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time  `json:"created_at"`
	Email     string     `json:"email" gorm:"not null;index;size:255"`
	TokenHash string     `json:"-" gorm:"not null;uniqueIndex;size:64"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null;index"`
	UsedAt    *time.Time `json:"used_at"`
}
