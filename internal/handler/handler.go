package handler

import (
	"net/http"
	"strings"

	"stop-spying-server/internal/config"
	"stop-spying-server/internal/usecase/app"
)

// CookieOptions 描述会话 Cookie 的属性；MaxAge 与会话有效期一致。
type CookieOptions struct {
	Name     string
	Path     string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

func NewCookieOptions(cfg config.SessionConfig) CookieOptions {
	name := strings.TrimSpace(cfg.CookieName)
	if name == "" {
		name = "session"
	}
	return CookieOptions{
		Name:     name,
		Path:     "/",
		Secure:   cfg.Secure,
		HTTPOnly: cfg.HTTPOnly,
		SameSite: parseSameSite(cfg.SameSite),
	}
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

type Handler struct {
	auth    *app.AuthUseCase
	passkey *app.PasskeyUseCase
	system  *app.SystemUseCase
	cookie  CookieOptions
}

func NewHandler(appUseCase *app.AppUseCase, cookie CookieOptions) *Handler {
	return &Handler{
		auth:    appUseCase.Auth,
		passkey: appUseCase.Passkey,
		system:  appUseCase.System,
		cookie:  cookie,
	}
}

// CookieName 返回会话 Cookie 名称，供鉴权中间件读取。
func (h *Handler) CookieName() string {
	return h.cookie.Name
}

// AuthUseCase 暴露给路由层挂载会话中间件。
func (h *Handler) AuthUseCase() *app.AuthUseCase {
	return h.auth
}
