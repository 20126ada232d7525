package app

import (
	"context"
	"log/slog"

	commonpkg "stop-spying-server/internal/common"
	"stop-spying-server/internal/logging"
	"stop-spying-server/internal/service"
	"stop-spying-server/internal/telemetry"
	"stop-spying-server/internal/utils"
)

// RequestMagicLink 签发登录令牌并投递邮件，返回规范化后的邮箱。
// 投递在独立 goroutine 中执行，这里等待结果以便向调用方报告发送失败。
func (c *AuthUseCase) RequestMagicLink(ctx context.Context, email string) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "auth.request_magic_link")
	defer span.End()

	normalized, ok, msg := utils.ValidateEmail(email)
	if !ok {
		return "", commonpkg.NewValidationError(msg)
	}

	rawToken, err := c.magicLinks.Issue(ctx, normalized)
	if err != nil {
		return "", err
	}

	message, err := c.email.RenderMagicLink(normalized, rawToken)
	if err != nil {
		slog.ErrorContext(ctx, "❌ 渲染登录邮件失败", "error", err)
		return "", commonpkg.NewInternalError("登录邮件发送失败，请稍后重试")
	}

	delivered := <-c.email.Dispatch(context.WithoutCancel(ctx), message)
	c.metrics.EmailDelivery(delivered)
	if !delivered {
		return "", commonpkg.NewInternalError("登录邮件发送失败，请稍后重试")
	}

	slog.InfoContext(ctx, "📧 登录链接已发送", "email", logging.MaskEmail(normalized))
	return normalized, nil
}

// VerifyMagicLink 消费登录令牌、按邮箱查找或创建用户并建立会话。
func (c *AuthUseCase) VerifyMagicLink(ctx context.Context, rawToken string, meta service.SessionMetadata) (*LoginResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "auth.verify_magic_link")
	defer span.End()

	email, err := c.magicLinks.Verify(ctx, rawToken)
	if err != nil {
		return nil, recordAuthFailure(ctx, c.metrics, flowMagicLink, err)
	}

	user, err := c.magicLinks.ResolveOrCreateUser(ctx, email)
	if err != nil {
		return nil, err
	}

	signed, _, err := c.sessions.Create(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}

	recordAuthSuccess(ctx, c.metrics, flowMagicLink, user.ID)
	slog.InfoContext(ctx, "✅ 登录链接校验成功", "user_id", user.ID, "email", logging.MaskEmail(user.Email))
	return &LoginResult{User: user, SignedSession: signed, MaxAge: c.sessions.MaxAge()}, nil
}

// Authenticate 校验签名会话并返回调用者身份。
func (c *AuthUseCase) Authenticate(ctx context.Context, signed string) (*Identity, error) {
	session, user, err := c.sessions.Verify(ctx, signed)
	if err != nil {
		return nil, recordAuthFailure(ctx, c.metrics, flowSession, err)
	}
	return &Identity{User: user, Session: session}, nil
}

// Logout 删除会话记录；会话已不存在时同样视为成功。
func (c *AuthUseCase) Logout(ctx context.Context, signed string) error {
	deleted, err := c.sessions.Destroy(ctx, signed)
	if err != nil {
		return err
	}
	if deleted {
		slog.InfoContext(ctx, "👋 用户已登出")
	}
	return nil
}

// SessionMaxAge 返回会话的统一有效期，供传输层设置 Cookie。
func (c *AuthUseCase) SessionMaxAge() int {
	return int(c.sessions.MaxAge().Seconds())
}
