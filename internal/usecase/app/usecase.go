package app

import (
	"time"

	"stop-spying-server/internal/metrics"
	"stop-spying-server/internal/model"
	"stop-spying-server/internal/repository"
	"stop-spying-server/internal/service"
)

// Identity 是会话校验通过后的调用者身份，显式传入需要鉴权的用例。
type Identity struct {
	User    *model.User
	Session *model.Session
}

// LoginResult 是登录成功后交给传输层的结果；MaxAge 与会话记录的有效期一致。
type LoginResult struct {
	User          *model.User
	SignedSession string
	MaxAge        time.Duration
}

type AuthUseCase struct {
	magicLinks *service.MagicLinkService
	sessions   *service.SessionService
	email      *service.EmailService
	metrics    *metrics.Recorder
}

type PasskeyUseCase struct {
	passkeys *service.PasskeyService
	sessions *service.SessionService
	users    repository.UserStore
	metrics  *metrics.Recorder
}

type SystemUseCase struct {
	system     repository.SystemStore
	magicLinks *service.MagicLinkService
	sessions   *service.SessionService
	metrics    *metrics.Recorder
	startedAt  time.Time
}
