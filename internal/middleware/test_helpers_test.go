package middleware

import (
	"context"
	"strings"
	"testing"
	"time"

	"stop-spying-server/internal/model"
	"stop-spying-server/internal/repository"
	"stop-spying-server/internal/service"
	"stop-spying-server/internal/testutils"
	"stop-spying-server/internal/usecase/app"

	"github.com/gin-gonic/gin"
)

const testCookieName = "session"

type authFixture struct {
	authUC   *app.AuthUseCase
	sessions *service.SessionService
	users    repository.UserStore
}

func setupAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb := testutils.SetupDB(t)
	users := repository.NewUserRepository(gdb)
	sessions, err := service.NewSessionService(repository.NewSessionRepository(gdb), service.SessionOptions{
		Secret: []byte(strings.Repeat("m", 32)),
		MaxAge: time.Hour,
	}, nil)
	if err != nil {
		t.Fatalf("NewSessionService: %v", err)
	}
	return &authFixture{
		authUC:   app.NewAuthUseCase(nil, sessions, nil, nil),
		sessions: sessions,
		users:    users,
	}
}

// login 创建用户并返回签名会话。
func (f *authFixture) login(t *testing.T, email string) (*model.User, string) {
	t.Helper()
	user, err := f.users.FirstOrCreateByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	signed, _, err := f.sessions.Create(context.Background(), user.ID, service.SessionMetadata{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return user, signed
}
