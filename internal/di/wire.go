//go:build wireinject
// +build wireinject

package di

import (
	"stop-spying-server/internal/config"
	"stop-spying-server/internal/handler"
	"stop-spying-server/internal/metrics"
	"stop-spying-server/internal/repository"
	"stop-spying-server/internal/router"
	"stop-spying-server/internal/service"
	"stop-spying-server/internal/usecase/app"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func InitializeApplication(cfg config.Config, gormDB *gorm.DB, redisClient *redis.Client) (*Application, error) {
	wire.Build(
		repository.NewUserRepository,
		repository.NewMagicLinkTokenRepository,
		repository.NewSessionRepository,
		repository.NewPasskeyRepository,
		repository.NewSystemRepository,
		ProvideClock,
		ProvideMagicLinkOptions,
		ProvideSessionOptions,
		ProvidePasskeyOptions,
		ProvideSMTPOptions,
		ProvideCeremonyStore,
		ProvideEmailService,
		ProvideCookieOptions,
		ProvideRateLimitConfig,
		ProvideServerConfig,
		service.NewMagicLinkService,
		service.NewSessionService,
		service.NewPasskeyService,
		metrics.New,
		app.NewAuthUseCase,
		app.NewPasskeyUseCase,
		app.NewSystemUseCase,
		app.NewAppUseCase,
		handler.NewHandler,
		router.NewRouter,
		NewApplication,
	)
	return nil, nil
}
