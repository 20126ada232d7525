package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"stop-spying-server/internal/model"

	"gorm.io/gorm"
)

// 测试内容：验证创建会话后可用签名信封校验并取回同一用户。
func TestSessionCreateVerify_RoundTrip(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	user := createTestUser(t, env, "s@x.com")

	signed, session, err := env.sessions.Create(ctx, user.ID, SessionMetadata{UserAgent: "UA", IPAddress: "127.0.0.1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !session.ExpiresAt.Equal(env.clock.Now().Add(7 * 24 * time.Hour)) {
		t.Fatalf("期望过期时间为一周后，实际为 %v", session.ExpiresAt)
	}

	verified, gotUser, err := env.sessions.Verify(ctx, signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verified.ID != session.ID || gotUser.ID != user.ID || gotUser.Email != "s@x.com" {
		t.Fatalf("期望会话 %d 用户 %d，实际为 %d/%d", session.ID, user.ID, verified.ID, gotUser.ID)
	}
}

// 测试内容：验证篡改信封任意位置都会导致签名校验失败。
func TestSessionVerify_TamperedEnvelope(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	user := createTestUser(t, env, "t@x.com")

	signed, _, err := env.sessions.Create(ctx, user.ID, SessionMetadata{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	parts := strings.Split(signed, ".")
	payload := []byte(parts[1])
	if payload[5] == 'A' {
		payload[5] = 'B'
	} else {
		payload[5] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, _, err := env.sessions.Verify(ctx, tampered); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("期望 ErrSignatureInvalid，实际为 %v", err)
	}
	if _, _, err := env.sessions.Verify(ctx, "garbage"); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("期望垃圾输入返回 ErrSignatureInvalid，实际为 %v", err)
	}
}

// 测试内容：验证会话在到期前 1 秒有效，到期后 1 秒失效。
func TestSessionVerify_ExpiryBoundary(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	user := createTestUser(t, env, "e@x.com")

	signed, _, err := env.sessions.Create(ctx, user.ID, SessionMetadata{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	env.clock.Advance(7*24*time.Hour - time.Second)
	if _, _, err := env.sessions.Verify(ctx, signed); err != nil {
		t.Fatalf("期望到期前校验成功，实际为 %v", err)
	}

	env.clock.Advance(2 * time.Second)
	if _, _, err := env.sessions.Verify(ctx, signed); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("期望到期后返回 ErrInvalidOrExpiredToken，实际为 %v", err)
	}
}

// 测试内容：验证销毁会话后信封立即失效，重复销毁返回 false。
func TestSessionDestroy(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	user := createTestUser(t, env, "d@x.com")

	signed, _, err := env.sessions.Create(ctx, user.ID, SessionMetadata{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	deleted, err := env.sessions.Destroy(ctx, signed)
	if err != nil || !deleted {
		t.Fatalf("期望删除成功，实际为 %v %v", deleted, err)
	}
	if _, _, err := env.sessions.Verify(ctx, signed); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("期望销毁后返回 ErrInvalidOrExpiredToken，实际为 %v", err)
	}

	deleted, err = env.sessions.Destroy(ctx, signed)
	if err != nil || deleted {
		t.Fatalf("期望重复销毁返回 false，实际为 %v %v", deleted, err)
	}
	deleted, err = env.sessions.Destroy(ctx, "not-an-envelope")
	if err != nil || deleted {
		t.Fatalf("期望无效信封返回 false，实际为 %v %v", deleted, err)
	}
}

// 测试内容：验证校验会话会刷新 last_activity。
func TestSessionVerify_TouchesLastActivity(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	user := createTestUser(t, env, "l@x.com")

	signed, session, err := env.sessions.Create(ctx, user.ID, SessionMetadata{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	env.clock.Advance(time.Hour)
	if _, _, err := env.sessions.Verify(ctx, signed); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	var stored model.Session
	if err := env.db.First(&stored, session.ID).Error; err != nil {
		t.Fatalf("读取会话失败: %v", err)
	}
	if stored.LastActivity == nil || !stored.LastActivity.Equal(env.clock.Now()) {
		t.Fatalf("期望 last_activity 为 %v，实际为 %v", env.clock.Now(), stored.LastActivity)
	}
}

// 测试内容：验证超长 User-Agent 与 IP 被截断后保存。
func TestSessionCreate_TruncatesMetadata(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	user := createTestUser(t, env, "m@x.com")

	_, session, err := env.sessions.Create(ctx, user.ID, SessionMetadata{
		UserAgent: strings.Repeat("浏", 600),
		IPAddress: strings.Repeat("1", 60),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.UserAgent == nil || len([]rune(*session.UserAgent)) != 512 {
		t.Fatalf("期望 User-Agent 截断为 512 字符")
	}
	if session.IPAddress == nil || len(*session.IPAddress) != 45 {
		t.Fatalf("期望 IP 截断为 45 字节")
	}
}

// 测试内容：验证清理过期会话。
func TestSessionCleanupExpired(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	user := createTestUser(t, env, "c@x.com")

	if _, _, err := env.sessions.Create(ctx, user.ID, SessionMetadata{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	env.clock.Advance(8 * 24 * time.Hour)

	deleted, err := env.sessions.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("期望删除 1 条，实际为 %d", deleted)
	}
}

// 测试内容：验证并发校验与注销同时进行时，每次校验要么拿到完整的会话与用户，要么失败；注销之后的校验全部失败。
func TestSessionVerify_ConcurrentWithDestroy(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	user := createTestUser(t, env, "race@x.com")

	signed, created, err := env.sessions.Create(ctx, user.ID, SessionMetadata{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, gotUser, err := env.sessions.Verify(ctx, signed)
			if err != nil {
				if !errors.Is(err, ErrInvalidOrExpiredToken) {
					errs <- err
				}
				return
			}
			if session == nil || gotUser == nil || session.ID != created.ID || gotUser.ID != user.ID ||
				gotUser.Email != "race@x.com" || session.LastActivity == nil {
				errs <- errors.New("校验返回了不完整的会话")
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := env.sessions.Destroy(ctx, signed); err != nil {
			errs <- err
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("并发校验结果不符合预期: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, _, err := env.sessions.Verify(ctx, signed); !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Fatalf("期望注销后校验失败，实际为 %v", err)
		}
	}
}

// 测试内容：验证会话在查到之后、刷新之前被删除时，校验返回无效而不是部分结果。
func TestSessionVerify_DestroyedBetweenLookupAndTouch(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	user := createTestUser(t, env, "gap@x.com")

	signed, created, err := env.sessions.Create(ctx, user.ID, SessionMetadata{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// 在刷新 last_activity 的 UPDATE 执行前，于同一事务内删除该会话
	err = env.db.Callback().Update().Before("gorm:update").Register("test:destroy_session", func(tx *gorm.DB) {
		if tx.Statement.Table == "sessions" {
			tx.Session(&gorm.Session{NewDB: true}).Exec("DELETE FROM sessions WHERE id = ?", created.ID)
		}
	})
	if err != nil {
		t.Fatalf("注册回调失败: %v", err)
	}

	session, gotUser, err := env.sessions.Verify(ctx, signed)
	if !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("期望 ErrInvalidOrExpiredToken，实际为 %v", err)
	}
	if session != nil || gotUser != nil {
		t.Fatalf("期望失败时不返回会话或用户")
	}
}

// 测试内容：验证信封的 exp 与会话记录的过期时间精确一致，时钟带亚秒部分时同样成立。
func TestSessionCreate_EnvelopeExpiryMatchesRow(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	user := createTestUser(t, env, "exp@x.com")
	env.clock.Advance(750 * time.Millisecond)

	signed, session, err := env.sessions.Create(ctx, user.ID, SessionMetadata{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	claims, err := env.sessions.signer.Parse(signed)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !claims.ExpiresAt.Time.Equal(session.ExpiresAt) {
		t.Fatalf("期望信封 exp %v 与会话过期时间 %v 一致", claims.ExpiresAt.Time, session.ExpiresAt)
	}
	if !claims.IssuedAt.Time.Equal(*session.LastActivity) {
		t.Fatalf("期望信封 iat 与会话创建时间一致")
	}
}
