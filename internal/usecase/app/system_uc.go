package app

import (
	"context"
	"log/slog"
	"time"

	commonpkg "stop-spying-server/internal/common"
	"stop-spying-server/internal/consts"
	"stop-spying-server/internal/repository"
)

// SweepResult 是一次过期数据清理的结果。
type SweepResult struct {
	MagicLinkTokens int64 `json:"magic_link_tokens"`
	Sessions        int64 `json:"sessions"`
}

// VersionInfo 是构建信息。
type VersionInfo struct {
	Application string `json:"application"`
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	BuildTime   string `json:"build_time"`
}

// Health 检查数据库连通性并返回概要计数。
func (c *SystemUseCase) Health(ctx context.Context) (*repository.SystemStats, error) {
	if err := c.system.Ping(ctx); err != nil {
		slog.ErrorContext(ctx, "❌ 数据库连接异常", "error", err)
		return nil, commonpkg.NewUnavailableError("数据库不可用")
	}
	stats, err := c.system.Stats(ctx)
	if err != nil {
		return nil, commonpkg.NewInternalError("读取系统状态失败")
	}
	return stats, nil
}

// Uptime 返回进程已运行的时长，不访问任何外部依赖。
func (c *SystemUseCase) Uptime() time.Duration {
	return time.Since(c.startedAt)
}

// Ready 要求数据库可达且表结构已迁移。
func (c *SystemUseCase) Ready(ctx context.Context) error {
	if err := c.system.Ping(ctx); err != nil {
		slog.ErrorContext(ctx, "❌ 数据库连接异常", "error", err)
		return commonpkg.NewUnavailableError("数据库不可用")
	}
	if err := c.system.SchemaReady(ctx); err != nil {
		slog.WarnContext(ctx, "⚠️ 数据库尚未完成迁移", "error", err)
		return commonpkg.NewUnavailableError("数据库尚未完成迁移")
	}
	return nil
}

func (c *SystemUseCase) Version() VersionInfo {
	return VersionInfo{
		Application: consts.ApplicationName,
		Version:     consts.ApplicationVersion,
		Commit:      consts.BuildCommit,
		BuildTime:   consts.BuildTime,
	}
}

// Sweep 删除已过期的登录令牌与会话。
func (c *SystemUseCase) Sweep(ctx context.Context) (*SweepResult, error) {
	tokens, err := c.magicLinks.CleanupExpired(ctx)
	if err != nil {
		return nil, commonpkg.NewInternalError("清理过期登录令牌失败")
	}
	sessions, err := c.sessions.CleanupExpired(ctx)
	if err != nil {
		return nil, commonpkg.NewInternalError("清理过期会话失败")
	}

	c.metrics.SweepDeleted("magic_link_tokens", tokens)
	c.metrics.SweepDeleted("sessions", sessions)
	if tokens > 0 || sessions > 0 {
		slog.InfoContext(ctx, "🧹 已清理过期数据", "magic_link_tokens", tokens, "sessions", sessions)
	}
	return &SweepResult{MagicLinkTokens: tokens, Sessions: sessions}, nil
}
