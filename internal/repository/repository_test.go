package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"stop-spying-server/internal/model"
	"stop-spying-server/internal/testutils"

	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupRepos(t *testing.T) (*gorm.DB, *Repositories) {
	t.Helper()
	gdb := testutils.SetupDB(t)
	return gdb, NewRepositories(
		NewUserRepository(gdb),
		NewMagicLinkTokenRepository(gdb),
		NewSessionRepository(gdb),
		NewPasskeyRepository(gdb),
		NewSystemRepository(gdb),
	)
}

func mustUser(t *testing.T, repos *Repositories, email string) *model.User {
	t.Helper()
	user, err := repos.User.FirstOrCreateByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("FirstOrCreateByEmail: %v", err)
	}
	return user
}

// 测试内容：验证按邮箱查找或创建用户是幂等的，且邮箱区分大小写。
func TestUserRepository_FirstOrCreateByEmail(t *testing.T) {
	_, repos := setupRepos(t)

	first := mustUser(t, repos, "a@example.com")
	again := mustUser(t, repos, "a@example.com")
	if first.ID != again.ID {
		t.Fatalf("期望同一用户，实际为 %d / %d", first.ID, again.ID)
	}
	upper := mustUser(t, repos, "A@example.com")
	if upper.ID == first.ID {
		t.Fatalf("期望大小写不同的邮箱对应不同用户")
	}
	if _, err := repos.User.FindByEmail(context.Background(), "none@example.com"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("期望 ErrRecordNotFound，实际为 %v", err)
	}
}

// 测试内容：验证令牌只能被消费一次，过期令牌无法消费，重新签发会替换未使用的旧令牌。
func TestMagicLinkTokenRepository_ConsumeOnce(t *testing.T) {
	_, repos := setupRepos(t)
	ctx := context.Background()

	token := &model.MagicLinkToken{Email: "a@example.com", TokenHash: "h1", ExpiresAt: baseTime.Add(time.Minute)}
	if err := repos.MagicLink.ReplaceForEmail(ctx, token); err != nil {
		t.Fatalf("ReplaceForEmail: %v", err)
	}

	if _, err := repos.MagicLink.ConsumeByHash(ctx, "h1", baseTime.Add(time.Minute)); !errors.Is(err, ErrConditionNotMet) {
		t.Fatalf("期望到期时刻无法消费，实际为 %v", err)
	}
	consumed, err := repos.MagicLink.ConsumeByHash(ctx, "h1", baseTime)
	if err != nil {
		t.Fatalf("ConsumeByHash: %v", err)
	}
	if consumed.Email != "a@example.com" || consumed.UsedAt == nil {
		t.Fatalf("消费结果不正确: %+v", consumed)
	}
	if _, err := repos.MagicLink.ConsumeByHash(ctx, "h1", baseTime); !errors.Is(err, ErrConditionNotMet) {
		t.Fatalf("期望重复消费失败，实际为 %v", err)
	}

	if err := repos.MagicLink.ReplaceForEmail(ctx, &model.MagicLinkToken{Email: "b@example.com", TokenHash: "h2", ExpiresAt: baseTime.Add(time.Minute)}); err != nil {
		t.Fatalf("ReplaceForEmail: %v", err)
	}
	if err := repos.MagicLink.ReplaceForEmail(ctx, &model.MagicLinkToken{Email: "b@example.com", TokenHash: "h3", ExpiresAt: baseTime.Add(time.Minute)}); err != nil {
		t.Fatalf("ReplaceForEmail: %v", err)
	}
	if _, err := repos.MagicLink.ConsumeByHash(ctx, "h2", baseTime); !errors.Is(err, ErrConditionNotMet) {
		t.Fatalf("期望旧令牌已被替换，实际为 %v", err)
	}
	if _, err := repos.MagicLink.ConsumeByHash(ctx, "h3", baseTime); err != nil {
		t.Fatalf("期望新令牌可消费，实际为 %v", err)
	}
}

// 测试内容：验证过期清理删除到期令牌（含已使用），保留未到期令牌。
func TestMagicLinkTokenRepository_DeleteExpired(t *testing.T) {
	_, repos := setupRepos(t)
	ctx := context.Background()

	for i, email := range []string{"x@example.com", "y@example.com", "z@example.com"} {
		token := &model.MagicLinkToken{Email: email, TokenHash: email, ExpiresAt: baseTime.Add(time.Duration(i-1) * time.Minute)}
		if err := repos.MagicLink.ReplaceForEmail(ctx, token); err != nil {
			t.Fatalf("ReplaceForEmail: %v", err)
		}
	}

	deleted, err := repos.MagicLink.DeleteExpired(ctx, baseTime)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("期望删除 2 条，实际为 %d", deleted)
	}
	if _, err := repos.MagicLink.ConsumeByHash(ctx, "z@example.com", baseTime); err != nil {
		t.Fatalf("期望未到期令牌保留，实际为 %v", err)
	}
}

// 测试内容：验证会话刷新、删除与过期判定。
func TestSessionRepository_Lifecycle(t *testing.T) {
	_, repos := setupRepos(t)
	ctx := context.Background()
	user := mustUser(t, repos, "s@example.com")

	session := &model.Session{UserID: user.ID, TokenHash: "sh", ExpiresAt: baseTime.Add(time.Hour)}
	if err := repos.Session.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}

	touched, err := repos.Session.TouchActive(ctx, session.ID, "sh", baseTime)
	if err != nil {
		t.Fatalf("TouchActive: %v", err)
	}
	if touched.User.Email != "s@example.com" || touched.LastActivity == nil {
		t.Fatalf("刷新结果不正确: %+v", touched)
	}
	if _, err := repos.Session.TouchActive(ctx, session.ID, "other", baseTime); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("期望令牌不匹配时找不到会话，实际为 %v", err)
	}
	if _, err := repos.Session.TouchActive(ctx, session.ID, "sh", baseTime.Add(time.Hour)); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("期望到期时刻会话无效，实际为 %v", err)
	}

	deleted, err := repos.Session.DeleteByIDAndHash(ctx, session.ID, "sh")
	if err != nil || !deleted {
		t.Fatalf("期望删除成功，实际为 %v (%v)", deleted, err)
	}
	deleted, err = repos.Session.DeleteByIDAndHash(ctx, session.ID, "sh")
	if err != nil || deleted {
		t.Fatalf("期望重复删除返回 false，实际为 %v (%v)", deleted, err)
	}
}

func newPasskey(userID uint, credentialID string) *model.PasskeyCredential {
	return &model.PasskeyCredential{
		UserID:       userID,
		CredentialID: credentialID,
		PublicKey:    []byte{1},
		Name:         "Key",
		Credential:   "{}",
	}
}

// 测试内容：验证凭据 ID 全局唯一与单用户数量上限。
func TestPasskeyRepository_CreateConstraints(t *testing.T) {
	_, repos := setupRepos(t)
	ctx := context.Background()
	alice := mustUser(t, repos, "alice@example.com")
	bob := mustUser(t, repos, "bob@example.com")

	if err := repos.Passkey.CreatePasskeyCredential(ctx, newPasskey(alice.ID, "c1"), 2); err != nil {
		t.Fatalf("CreatePasskeyCredential: %v", err)
	}
	if err := repos.Passkey.CreatePasskeyCredential(ctx, newPasskey(bob.ID, "c1"), 2); !errors.Is(err, ErrDuplicateCredentialID) {
		t.Fatalf("期望跨用户重复凭据被拒绝，实际为 %v", err)
	}
	if err := repos.Passkey.CreatePasskeyCredential(ctx, newPasskey(alice.ID, "c2"), 2); err != nil {
		t.Fatalf("CreatePasskeyCredential: %v", err)
	}
	if err := repos.Passkey.CreatePasskeyCredential(ctx, newPasskey(alice.ID, "c3"), 2); !errors.Is(err, ErrPasskeyLimitReached) {
		t.Fatalf("期望达到上限，实际为 %v", err)
	}

	count, err := repos.Passkey.CountPasskeyCredentialsByUserID(ctx, alice.ID)
	if err != nil || count != 2 {
		t.Fatalf("期望 2 条凭据，实际为 %d (%v)", count, err)
	}
}

// 测试内容：验证签名计数器只能以旧值为条件推进。
func TestPasskeyRepository_AdvanceSignCount(t *testing.T) {
	_, repos := setupRepos(t)
	ctx := context.Background()
	user := mustUser(t, repos, "c@example.com")
	record := newPasskey(user.ID, "cc")
	if err := repos.Passkey.CreatePasskeyCredential(ctx, record, 0); err != nil {
		t.Fatalf("CreatePasskeyCredential: %v", err)
	}

	if err := repos.Passkey.AdvanceSignCount(ctx, record.ID, 0, 5, `{"n":5}`, baseTime); err != nil {
		t.Fatalf("AdvanceSignCount: %v", err)
	}
	if err := repos.Passkey.AdvanceSignCount(ctx, record.ID, 0, 6, `{"n":6}`, baseTime); !errors.Is(err, ErrConditionNotMet) {
		t.Fatalf("期望旧计数不匹配时失败，实际为 %v", err)
	}

	stored, err := repos.Passkey.FindPasskeyCredentialByCredentialID(ctx, "cc")
	if err != nil {
		t.Fatalf("FindPasskeyCredentialByCredentialID: %v", err)
	}
	if stored.SignCount != 5 || stored.Credential != `{"n":5}` || stored.LastUsedAt == nil {
		t.Fatalf("计数器推进结果不正确: %+v", stored)
	}
}

// 测试内容：验证改名与删除只作用于本人的凭据。
func TestPasskeyRepository_OwnerScopedMutations(t *testing.T) {
	_, repos := setupRepos(t)
	ctx := context.Background()
	owner := mustUser(t, repos, "o@example.com")
	other := mustUser(t, repos, "p@example.com")
	record := newPasskey(owner.ID, "oc")
	if err := repos.Passkey.CreatePasskeyCredential(ctx, record, 0); err != nil {
		t.Fatalf("CreatePasskeyCredential: %v", err)
	}

	if err := repos.Passkey.UpdatePasskeyCredentialNameByID(ctx, other.ID, record.ID, "Stolen"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("期望他人改名失败，实际为 %v", err)
	}
	if err := repos.Passkey.DeletePasskeyCredentialByID(ctx, other.ID, record.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("期望他人删除失败，实际为 %v", err)
	}
	if err := repos.Passkey.UpdatePasskeyCredentialNameByID(ctx, owner.ID, record.ID, "Phone"); err != nil {
		t.Fatalf("UpdatePasskeyCredentialNameByID: %v", err)
	}
	list, err := repos.Passkey.ListPasskeyCredentialsByUserID(ctx, owner.ID)
	if err != nil || len(list) != 1 || list[0].Name != "Phone" {
		t.Fatalf("列表结果不正确: %+v (%v)", list, err)
	}
	if err := repos.Passkey.DeletePasskeyCredentialByID(ctx, owner.ID, record.ID); err != nil {
		t.Fatalf("DeletePasskeyCredentialByID: %v", err)
	}
}

// 测试内容：验证系统统计与连通性检查。
func TestSystemRepository_PingAndStats(t *testing.T) {
	_, repos := setupRepos(t)
	ctx := context.Background()
	user := mustUser(t, repos, "sys@example.com")
	if err := repos.Session.Create(ctx, &model.Session{UserID: user.ID, TokenHash: "live", ExpiresAt: time.Now().UTC().Add(time.Hour)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repos.Session.Create(ctx, &model.Session{UserID: user.ID, TokenHash: "dead", ExpiresAt: time.Now().UTC().Add(-time.Hour)}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repos.System.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	stats, err := repos.System.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Users != 1 || stats.ActiveSessions != 1 || stats.Passkeys != 0 {
		t.Fatalf("统计结果不正确: %+v", stats)
	}
}
