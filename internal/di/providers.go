package di

import (
	"time"

	"stop-spying-server/internal/config"
	"stop-spying-server/internal/consts"
	"stop-spying-server/internal/handler"
	"stop-spying-server/internal/service"

	"github.com/redis/go-redis/v9"
)

// 以下 provider 把全局配置快照转换为各服务的显式选项，服务本身不读取全局配置。

func ProvideClock() service.Clock {
	return service.SystemClock
}

func ProvideMagicLinkOptions(cfg config.Config) service.MagicLinkOptions {
	return service.MagicLinkOptions{TTL: seconds(cfg.MagicLink.TTLSeconds)}
}

func ProvideSessionOptions(cfg config.Config) service.SessionOptions {
	return service.SessionOptions{
		Secret: []byte(cfg.Session.SecretKey),
		MaxAge: seconds(cfg.Session.MaxAgeSeconds),
	}
}

func ProvidePasskeyOptions(cfg config.Config) service.PasskeyOptions {
	return service.PasskeyOptions{
		RPID:       cfg.WebAuthn.RPID,
		RPName:     cfg.WebAuthn.RPName,
		Origin:     cfg.WebAuthn.Origin,
		Timeout:    seconds(cfg.WebAuthn.TimeoutSeconds),
		MaxPerUser: consts.MaxUserPasskeyCount,
	}
}

func ProvideSMTPOptions(cfg config.Config) service.SMTPOptions {
	return service.SMTPOptions{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		SSL:      cfg.SMTP.SSL,
		StartTLS: cfg.SMTP.StartTLS,
		Origin:   cfg.WebAuthn.Origin,
		LinkTTL:  seconds(cfg.MagicLink.TTLSeconds),
	}
}

// ProvideCeremonyStore 的挑战有效期与 WebAuthn 超时一致；redisClient 为 nil 时使用内存存储。
func ProvideCeremonyStore(redisClient *redis.Client, cfg config.Config, clock service.Clock) *service.CeremonyStore {
	ttl := seconds(cfg.WebAuthn.TimeoutSeconds)
	if ttl <= 0 {
		ttl = time.Minute
	}
	return service.NewCeremonyStore(redisClient, cfg.Redis.Prefix, ttl, clock)
}

func ProvideEmailService(opts service.SMTPOptions) *service.EmailService {
	return service.NewEmailService(opts, nil)
}

func ProvideCookieOptions(cfg config.Config) handler.CookieOptions {
	return handler.NewCookieOptions(cfg.Session)
}

func ProvideRateLimitConfig(cfg config.Config) config.RateLimitConfig {
	return cfg.RateLimit
}

func ProvideServerConfig(cfg config.Config) config.ServerConfig {
	return cfg.Server
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
