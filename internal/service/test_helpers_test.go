package service

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"stop-spying-server/internal/model"
	repo "stop-spying-server/internal/repository"
	"stop-spying-server/internal/testutils"

	"gorm.io/gorm"
)

const (
	testRPID   = "localhost"
	testOrigin = "http://localhost:8000"
)

var testSecret = []byte(strings.Repeat("s", 32))

// fakeClock 是可手动推进的测试时钟。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db         *gorm.DB
	clock      *fakeClock
	users      repo.UserStore
	passkeyDB  repo.PasskeyStore
	magic      *MagicLinkService
	sessions   *SessionService
	ceremonies *CeremonyStore
	passkeys   *PasskeyService
}

func setupServices(t *testing.T) *testEnv {
	t.Helper()

	gdb := testutils.SetupDB(t)
	clock := newFakeClock()

	users := repo.NewUserRepository(gdb)
	passkeyStore := repo.NewPasskeyRepository(gdb)

	sessions, err := NewSessionService(repo.NewSessionRepository(gdb), SessionOptions{
		Secret: testSecret,
		MaxAge: 7 * 24 * time.Hour,
	}, clock.Now)
	if err != nil {
		t.Fatalf("NewSessionService: %v", err)
	}

	ceremonies := NewCeremonyStore(nil, "test", time.Minute, clock.Now)
	passkeys, err := NewPasskeyService(passkeyStore, users, ceremonies, PasskeyOptions{
		RPID:    testRPID,
		RPName:  "Stop Spying On Me",
		Origin:  testOrigin,
		Timeout: time.Minute,
	}, clock.Now)
	if err != nil {
		t.Fatalf("NewPasskeyService: %v", err)
	}

	return &testEnv{
		db:         gdb,
		clock:      clock,
		users:      users,
		passkeyDB:  passkeyStore,
		magic:      NewMagicLinkService(repo.NewMagicLinkTokenRepository(gdb), users, MagicLinkOptions{TTL: 15 * time.Minute}, clock.Now),
		sessions:   sessions,
		ceremonies: ceremonies,
		passkeys:   passkeys,
	}
}

func createTestUser(t *testing.T, env *testEnv, email string) *model.User {
	t.Helper()
	user, err := env.users.FirstOrCreateByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}
	return user
}

func userHandle(user *model.User) []byte {
	return []byte(strconv.FormatUint(uint64(user.ID), 10))
}

// registerTestPasskey 使用软件认证器走完整注册流程。
func registerTestPasskey(t *testing.T, env *testEnv, authn *testutils.SoftAuthenticator, user *model.User) (*testutils.SoftCredential, *model.PasskeyCredential) {
	t.Helper()
	ctx := context.Background()

	ceremonyID, creation, err := env.passkeys.GenerateRegistrationOptions(ctx, user)
	if err != nil {
		t.Fatalf("GenerateRegistrationOptions: %v", err)
	}
	cred, body, err := authn.Register(creation.Response.Challenge.String(), userHandle(user))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	record, err := env.passkeys.VerifyRegistration(ctx, user, ceremonyID, body, "Laptop")
	if err != nil {
		t.Fatalf("VerifyRegistration: %v", err)
	}
	return cred, record
}

// loginWithPasskey 发起登录挑战并以给定计数器应答。
func loginWithPasskey(t *testing.T, env *testEnv, authn *testutils.SoftAuthenticator, user *model.User, cred *testutils.SoftCredential, counter uint32) (*model.User, error) {
	t.Helper()
	ctx := context.Background()

	ceremonyID, assertion, err := env.passkeys.GenerateAuthenticationOptions(ctx, user)
	if err != nil {
		t.Fatalf("GenerateAuthenticationOptions: %v", err)
	}
	body, err := authn.Assert(cred, assertion.Response.Challenge.String(), counter)
	if err != nil {
		t.Fatalf("Assert: %v", err)
	}
	return env.passkeys.VerifyAuthentication(ctx, ceremonyID, body)
}
