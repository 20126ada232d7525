package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"stop-spying-server/internal/config"
	"stop-spying-server/internal/metrics"
	"stop-spying-server/internal/middleware"
	"stop-spying-server/internal/repository"
	"stop-spying-server/internal/service"
	"stop-spying-server/internal/testutils"
	"stop-spying-server/internal/usecase/app"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	testRPID   = "localhost"
	testOrigin = "http://localhost:8000"
)

var tokenPattern = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

type captureMailer struct {
	mu     sync.Mutex
	bodies []string
}

func (m *captureMailer) Send(_ context.Context, _ string, _ string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies = append(m.bodies, body)
	return nil
}

func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.bodies) == 0 {
		t.Fatalf("期望已发送邮件")
	}
	match := tokenPattern.FindStringSubmatch(m.bodies[len(m.bodies)-1])
	if len(match) != 2 {
		t.Fatalf("邮件中没有登录令牌")
	}
	return match[1]
}

type handlerFixture struct {
	router *gin.Engine
	mailer *captureMailer
	h      *Handler
	gdb    *gorm.DB
}

func setupHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb := testutils.SetupDB(t)
	users := repository.NewUserRepository(gdb)
	recorder := metrics.New()
	mailer := &captureMailer{}

	magicLinks := service.NewMagicLinkService(repository.NewMagicLinkTokenRepository(gdb), users, service.MagicLinkOptions{TTL: 15 * time.Minute}, nil)
	sessions, err := service.NewSessionService(repository.NewSessionRepository(gdb), service.SessionOptions{
		Secret: []byte(strings.Repeat("h", 32)),
		MaxAge: 24 * time.Hour,
	}, nil)
	if err != nil {
		t.Fatalf("NewSessionService: %v", err)
	}
	passkeys, err := service.NewPasskeyService(
		repository.NewPasskeyRepository(gdb),
		users,
		service.NewCeremonyStore(nil, "test", time.Minute, nil),
		service.PasskeyOptions{RPID: testRPID, RPName: "Stop Spying On Me", Origin: testOrigin, Timeout: time.Minute},
		nil,
	)
	if err != nil {
		t.Fatalf("NewPasskeyService: %v", err)
	}
	email := service.NewEmailService(service.SMTPOptions{Origin: testOrigin, LinkTTL: 15 * time.Minute}, mailer)

	appUC := app.NewAppUseCase(
		app.NewAuthUseCase(magicLinks, sessions, email, recorder),
		app.NewPasskeyUseCase(passkeys, sessions, users, recorder),
		app.NewSystemUseCase(repository.NewSystemRepository(gdb), magicLinks, sessions, recorder),
	)
	h := NewHandler(appUC, NewCookieOptions(config.SessionConfig{CookieName: "session", HTTPOnly: true, SameSite: "lax"}))

	r := gin.New()
	api := r.Group("/api")
	api.GET("/health", h.Health)
	api.GET("/health/live", h.Live)
	api.GET("/health/ready", h.Ready)
	api.GET("/version", h.Version)
	auth := api.Group("/auth")
	auth.POST("/magic-link", h.RequestMagicLink)
	auth.POST("/magic-link/verify", h.VerifyMagicLink)
	auth.POST("/logout", h.Logout)
	auth.POST("/passkey/login/start", h.BeginPasskeyLogin)
	auth.POST("/passkey/login/finish", h.FinishPasskeyLogin)
	auth.GET("/me", middleware.SessionAuth(h.AuthUseCase(), h.CookieName()), h.Me)
	user := api.Group("/user", middleware.SessionAuth(h.AuthUseCase(), h.CookieName()))
	user.POST("/passkeys/register/start", h.BeginPasskeyRegistration)
	user.POST("/passkeys/register/finish", h.FinishPasskeyRegistration)
	user.GET("/passkeys", h.ListPasskeys)
	user.PATCH("/passkeys/:id", h.RenamePasskey)
	user.DELETE("/passkeys/:id", h.DeletePasskey)

	return &handlerFixture{router: r, mailer: mailer, h: h, gdb: gdb}
}

// do 发送 JSON 请求；cookie 非空时附带会话 Cookie。
func (f *handlerFixture) do(t *testing.T, method, path string, body any, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	switch v := body.(type) {
	case nil:
	case []byte:
		payload = v
	default:
		var err error
		payload, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: cookie})
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// login 走完整的登录链接流程，返回会话 Cookie 值与用户 ID。
func (f *handlerFixture) login(t *testing.T, email string) (string, uint) {
	t.Helper()
	if w := f.do(t, http.MethodPost, "/api/auth/magic-link", gin.H{"email": email}, ""); w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际为 %d: %s", w.Code, w.Body.String())
	}
	w := f.do(t, http.MethodPost, "/api/auth/magic-link/verify", gin.H{"token": f.mailer.lastToken(t)}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际为 %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		UserID uint `json:"user_id"`
	}
	decode(t, w, &resp)
	return sessionCookie(t, w), resp.UserID
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "session" {
			return cookie.Value
		}
	}
	t.Fatalf("响应中没有会话 Cookie")
	return ""
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("解析响应失败: %v (%s)", err, w.Body.String())
	}
}

// challengeOf 取出 {session_id, options.publicKey.challenge}。
func challengeOf(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var resp struct {
		SessionID string `json:"session_id"`
		Options   struct {
			PublicKey struct {
				Challenge string `json:"challenge"`
			} `json:"publicKey"`
		} `json:"options"`
	}
	decode(t, w, &resp)
	if resp.SessionID == "" || resp.Options.PublicKey.Challenge == "" {
		t.Fatalf("挑战响应不完整: %s", w.Body.String())
	}
	return resp.SessionID, resp.Options.PublicKey.Challenge
}

func userHandle(userID uint) []byte {
	return []byte(strconv.FormatUint(uint64(userID), 10))
}
