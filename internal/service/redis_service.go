package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stop-spying-server/internal/config"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "stop_spying"

// NewRedisClient 根据配置创建 Redis 客户端；未启用或不可用时返回 nil，调用方降级为内存模式。
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		slog.Warn("⚠️ Redis 不可用，降级为内存模式", "error", err)
		return nil
	}

	slog.Info("✅ Redis 已连接", "addr", cfg.Addr, "db", cfg.DB)
	return client
}

// RedisKey 基于前缀拼接 Redis 键名。
func RedisKey(prefix string, parts ...string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if len(parts) == 0 {
		return prefix
	}
	return prefix + ":" + strings.Join(parts, ":")
}

// CloseRedisClient 关闭 Redis 客户端连接。
func CloseRedisClient(client *redis.Client) error {
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("close redis failed: %w", err)
	}
	return nil
}
