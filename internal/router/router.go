package router

import (
	"fmt"
	"log/slog"

	"stop-spying-server/internal/config"
	"stop-spying-server/internal/handler"
	"stop-spying-server/internal/metrics"
	"stop-spying-server/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Router struct {
	handler        *handler.Handler
	metrics        *metrics.Recorder
	rateLimit      config.RateLimitConfig
	trustedProxies []string
}

func NewRouter(h *handler.Handler, recorder *metrics.Recorder, rateLimit config.RateLimitConfig, server config.ServerConfig) *Router {
	return &Router{
		handler:        h,
		metrics:        recorder,
		rateLimit:      rateLimit,
		trustedProxies: server.TrustedProxies,
	}
}

// Init 注册中间件与路由。限流与会话记录依赖 ClientIP，必须先收紧受信代理。
func (rt *Router) Init(r *gin.Engine) error {
	if err := applyTrustedProxies(r, rt.trustedProxies); err != nil {
		return err
	}

	r.Use(middleware.RequestLogger(slog.Default()))
	// 注册全局安全标头中间件
	r.Use(middleware.SecurityHeaders())

	api := r.Group("/api")
	// 应用请求体大小限制中间件
	api.Use(middleware.BodyLimitMiddleware(middleware.DefaultMaxBodyBytes))

	// 未认证的登录入口共用同一个按 IP 限流实例
	authLimiter := middleware.RateLimitMiddleware(rt.rateLimit)
	sessionAuth := middleware.SessionAuth(rt.handler.AuthUseCase(), rt.handler.CookieName())

	registerSystemRoutes(r, api, rt.handler, rt.metrics)
	registerAuthRoutes(api, authLimiter, sessionAuth, rt.handler)
	registerUserRoutes(api, sessionAuth, rt.handler)
	return nil
}

// applyTrustedProxies 未配置时不信任任何代理，X-Forwarded-For 一律忽略。
func applyTrustedProxies(r *gin.Engine, proxies []string) error {
	var trusted []string
	for _, p := range proxies {
		if p != "" {
			trusted = append(trusted, p)
		}
	}
	if err := r.SetTrustedProxies(trusted); err != nil {
		return fmt.Errorf("server.trusted_proxies 配置无效: %w", err)
	}
	return nil
}
