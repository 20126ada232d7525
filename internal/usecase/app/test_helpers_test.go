package app

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	commonpkg "stop-spying-server/internal/common"
	"stop-spying-server/internal/metrics"
	"stop-spying-server/internal/model"
	"stop-spying-server/internal/repository"
	"stop-spying-server/internal/service"
	"stop-spying-server/internal/testutils"

	"gorm.io/gorm"
)

const (
	testRPID   = "localhost"
	testOrigin = "http://localhost:8000"
)

var tokenPattern = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

type fakeMailer struct {
	mu   sync.Mutex
	sent []service.EmailMessage
	fail bool
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("relay unavailable")
	}
	m.sent = append(m.sent, service.EmailMessage{To: to, Subject: subject, Body: body})
	return nil
}

// lastToken 从最近一封邮件中取出登录令牌。
func (m *fakeMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("expected a mail to be sent")
	}
	match := tokenPattern.FindStringSubmatch(m.sent[len(m.sent)-1].Body)
	if len(match) != 2 {
		t.Fatalf("mail body has no token: %q", m.sent[len(m.sent)-1].Body)
	}
	return match[1]
}

type appFixture struct {
	gdb       *gorm.DB
	mailer    *fakeMailer
	users     repository.UserStore
	metrics   *metrics.Recorder
	authUC    *AuthUseCase
	passkeyUC *PasskeyUseCase
	systemUC  *SystemUseCase
}

func setupAppFixture(t *testing.T) *appFixture {
	t.Helper()

	gdb := testutils.SetupDB(t)
	users := repository.NewUserRepository(gdb)
	recorder := metrics.New()
	mailer := &fakeMailer{}

	magicLinks := service.NewMagicLinkService(repository.NewMagicLinkTokenRepository(gdb), users, service.MagicLinkOptions{TTL: 15 * time.Minute}, nil)
	sessions, err := service.NewSessionService(repository.NewSessionRepository(gdb), service.SessionOptions{
		Secret: []byte(strings.Repeat("k", 32)),
		MaxAge: 7 * 24 * time.Hour,
	}, nil)
	if err != nil {
		t.Fatalf("NewSessionService failed: %v", err)
	}
	passkeys, err := service.NewPasskeyService(
		repository.NewPasskeyRepository(gdb),
		users,
		service.NewCeremonyStore(nil, "test", time.Minute, nil),
		service.PasskeyOptions{RPID: testRPID, RPName: "Stop Spying On Me", Origin: testOrigin, Timeout: time.Minute},
		nil,
	)
	if err != nil {
		t.Fatalf("NewPasskeyService failed: %v", err)
	}
	email := service.NewEmailService(service.SMTPOptions{Origin: testOrigin, LinkTTL: 15 * time.Minute}, mailer)

	return &appFixture{
		gdb:       gdb,
		mailer:    mailer,
		users:     users,
		metrics:   recorder,
		authUC:    NewAuthUseCase(magicLinks, sessions, email, recorder),
		passkeyUC: NewPasskeyUseCase(passkeys, sessions, users, recorder),
		systemUC:  NewSystemUseCase(repository.NewSystemRepository(gdb), magicLinks, sessions, recorder),
	}
}

// loginByMagicLink 走完整的登录链接流程并返回登录结果。
func (f *appFixture) loginByMagicLink(t *testing.T, email string) *LoginResult {
	t.Helper()
	ctx := context.Background()
	if _, err := f.authUC.RequestMagicLink(ctx, email); err != nil {
		t.Fatalf("RequestMagicLink failed: %v", err)
	}
	result, err := f.authUC.VerifyMagicLink(ctx, f.mailer.lastToken(t), service.SessionMetadata{})
	if err != nil {
		t.Fatalf("VerifyMagicLink failed: %v", err)
	}
	return result
}

func handleOf(user *model.User) []byte {
	return []byte(strconv.FormatUint(uint64(user.ID), 10))
}

func assertServiceErrorCode(t *testing.T, err error, code commonpkg.ErrorCode) {
	t.Helper()
	serviceErr, ok := commonpkg.AsServiceError(err)
	if !ok {
		t.Fatalf("expected ServiceError(%s), got %v", code, err)
	}
	if serviceErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, serviceErr.Code, serviceErr.Message)
	}
}

func assertUniformAuthFailure(t *testing.T, err error) {
	t.Helper()
	assertServiceErrorCode(t, err, commonpkg.ErrorCodeUnauthorized)
	serviceErr, _ := commonpkg.AsServiceError(err)
	if serviceErr.Message != authFailedMessage {
		t.Fatalf("expected uniform message %q, got %q", authFailedMessage, serviceErr.Message)
	}
}
