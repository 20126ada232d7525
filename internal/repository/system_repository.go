package repository

import "context"

// SystemStats 是健康检查返回的概要计数。
type SystemStats struct {
	Users          int64 `json:"users"`
	ActiveSessions int64 `json:"active_sessions"`
	Passkeys       int64 `json:"passkeys"`
}

type SystemStore interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (*SystemStats, error)
	// SchemaReady 检查全部业务表是否已迁移
	SchemaReady(ctx context.Context) error
}
