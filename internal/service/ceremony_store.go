package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"stop-spying-server/internal/consts"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
)

// CeremonyEntry 是一次 Passkey 仪式在服务端保存的挑战状态。
type CeremonyEntry struct {
	Type        consts.PasskeySessionType `json:"type"`
	UserID      uint                      `json:"user_id"`
	Decoy       bool                      `json:"decoy,omitempty"`
	SessionData webauthn.SessionData      `json:"session_data"`
	ExpiresAt   time.Time                 `json:"expires_at"`
}

// CeremonyStore 保存一次性挑战：Redis 可用时使用 GETDEL，否则回退进程内存。
type CeremonyStore struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
	memory sync.Map
	now    Clock
}

func NewCeremonyStore(client *redis.Client, prefix string, ttl time.Duration, clock Clock) *CeremonyStore {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if clock == nil {
		clock = SystemClock
	}
	return &CeremonyStore{redis: client, prefix: prefix, ttl: ttl, now: clock}
}

func (s *CeremonyStore) TTL() time.Duration {
	return s.ttl
}

// Save 保存挑战并返回一次性仪式 ID，前端只持有该 ID。
func (s *CeremonyStore) Save(ctx context.Context, entry CeremonyEntry) (string, error) {
	ceremonyID, err := generateCeremonyID()
	if err != nil {
		return "", err
	}

	entry.ExpiresAt = s.now().UTC().Add(s.ttl)
	if s.saveInRedis(ctx, ceremonyID, entry) {
		return ceremonyID, nil
	}

	s.cleanupExpired()
	s.memory.Store(ceremonyID, entry)
	return ceremonyID, nil
}

// Consume 读取并删除挑战；不存在、类型不符或已过期都返回 ErrCeremonyNotFound。
func (s *CeremonyStore) Consume(ctx context.Context, ceremonyID string, expectedType consts.PasskeySessionType) (*CeremonyEntry, error) {
	if strings.TrimSpace(ceremonyID) == "" {
		return nil, ErrCeremonyNotFound
	}

	entry := s.consumeFromRedis(ctx, ceremonyID)
	if entry == nil {
		raw, ok := s.memory.LoadAndDelete(ceremonyID)
		if !ok {
			return nil, ErrCeremonyNotFound
		}
		stored, ok := raw.(CeremonyEntry)
		if !ok {
			return nil, ErrCeremonyNotFound
		}
		entry = &stored
	}

	// 防止把注册挑战拿去走登录校验，或反向混用。
	if entry.Type != expectedType {
		return nil, ErrCeremonyNotFound
	}
	if !s.now().UTC().Before(entry.ExpiresAt) {
		return nil, ErrCeremonyNotFound
	}
	return entry, nil
}

func (s *CeremonyStore) saveInRedis(ctx context.Context, ceremonyID string, entry CeremonyEntry) bool {
	if s.redis == nil {
		return false
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		slog.Warn("⚠️ Passkey 挑战序列化失败，回退内存存储", "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := s.redis.Set(ctx, s.key(ceremonyID), payload, s.ttl).Err(); err != nil {
		slog.Warn("⚠️ Redis 写入 Passkey 挑战失败，回退内存存储", "error", err)
		return false
	}
	return true
}

func (s *CeremonyStore) consumeFromRedis(ctx context.Context, ceremonyID string) *CeremonyEntry {
	if s.redis == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	payload, err := s.redis.GetDel(ctx, s.key(ceremonyID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("⚠️ Redis 读取 Passkey 挑战失败，回退内存存储", "error", err)
		}
		return nil
	}

	var entry CeremonyEntry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		slog.Warn("⚠️ Passkey 挑战数据异常", "error", err)
		return nil
	}
	return &entry
}

func (s *CeremonyStore) key(ceremonyID string) string {
	return RedisKey(s.prefix, "passkey", "ceremony", ceremonyID)
}

// cleanupExpired 写入前顺带清理内存中的过期挑战。
func (s *CeremonyStore) cleanupExpired() {
	now := s.now().UTC()
	s.memory.Range(func(key, value interface{}) bool {
		entry, ok := value.(CeremonyEntry)
		if !ok || !now.Before(entry.ExpiresAt) {
			s.memory.Delete(key)
		}
		return true
	})
}

func generateCeremonyID() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}
