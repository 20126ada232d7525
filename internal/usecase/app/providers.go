package app

import (
	"time"

	"stop-spying-server/internal/metrics"
	"stop-spying-server/internal/repository"
	"stop-spying-server/internal/service"
)

type AppUseCase struct {
	Auth    *AuthUseCase
	Passkey *PasskeyUseCase
	System  *SystemUseCase
}

func NewAuthUseCase(
	magicLinks *service.MagicLinkService,
	sessions *service.SessionService,
	email *service.EmailService,
	recorder *metrics.Recorder,
) *AuthUseCase {
	return &AuthUseCase{
		magicLinks: magicLinks,
		sessions:   sessions,
		email:      email,
		metrics:    recorder,
	}
}

func NewPasskeyUseCase(
	passkeys *service.PasskeyService,
	sessions *service.SessionService,
	users repository.UserStore,
	recorder *metrics.Recorder,
) *PasskeyUseCase {
	return &PasskeyUseCase{
		passkeys: passkeys,
		sessions: sessions,
		users:    users,
		metrics:  recorder,
	}
}

func NewSystemUseCase(
	system repository.SystemStore,
	magicLinks *service.MagicLinkService,
	sessions *service.SessionService,
	recorder *metrics.Recorder,
) *SystemUseCase {
	return &SystemUseCase{
		system:     system,
		magicLinks: magicLinks,
		sessions:   sessions,
		metrics:    recorder,
		startedAt:  time.Now(),
	}
}

func NewAppUseCase(
	authUseCase *AuthUseCase,
	passkeyUseCase *PasskeyUseCase,
	systemUseCase *SystemUseCase,
) *AppUseCase {
	return &AppUseCase{
		Auth:    authUseCase,
		Passkey: passkeyUseCase,
		System:  systemUseCase,
	}
}
