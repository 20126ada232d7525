package model

import "time"

type Session struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	UserID       uint       `json:"user_id" gorm:"not null;index:idx_sessions_user_expires,priority:1"`
	TokenHash    string     `json:"-" gorm:"not null;uniqueIndex;size:64"`
	ExpiresAt    time.Time  `json:"expires_at" gorm:"not null;index;index:idx_sessions_user_expires,priority:2"`
	UserAgent    *string    `json:"user_agent" gorm:"size:512"`
	IPAddress    *string    `json:"ip_address" gorm:"size:45"` // IPv6 最长 45
	LastActivity *time.Time `json:"last_activity"`
	User         User       `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE;" json:"-"`
}
