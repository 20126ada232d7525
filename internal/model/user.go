package model

import "time"

// User 是身份锚点；邮箱按存储时的大小写唯一。
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null;size:255"`
}
