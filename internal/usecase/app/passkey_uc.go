package app

import (
	"context"
	"errors"
	"log/slog"

	commonpkg "stop-spying-server/internal/common"
	"stop-spying-server/internal/logging"
	"stop-spying-server/internal/service"
	"stop-spying-server/internal/telemetry"
	"stop-spying-server/internal/utils"

	"github.com/go-webauthn/webauthn/protocol"
	"gorm.io/gorm"
)

// BeginPasskeyRegistration 为当前登录用户创建 Passkey 注册挑战。
func (c *PasskeyUseCase) BeginPasskeyRegistration(ctx context.Context, identity *Identity) (string, *protocol.CredentialCreation, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "passkey.begin_registration")
	defer span.End()

	return c.passkeys.GenerateRegistrationOptions(ctx, identity.User)
}

// FinishPasskeyRegistration 校验注册响应并保存凭据。
// 调用方已登录，因此这里返回具体的失败原因。
func (c *PasskeyUseCase) FinishPasskeyRegistration(ctx context.Context, identity *Identity, ceremonyID string, name string, credentialJSON []byte) (*service.UserPasskey, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "passkey.finish_registration")
	defer span.End()

	record, err := c.passkeys.VerifyRegistration(ctx, identity.User, ceremonyID, credentialJSON, name)
	if err != nil {
		slog.WarnContext(ctx, "⚠️ Passkey 注册失败", "user_id", identity.User.ID, "reason", service.AuthFailureReason(err))
		switch {
		case errors.Is(err, service.ErrDuplicateCredential):
			return nil, commonpkg.NewConflictError("该 Passkey 已被绑定")
		case errors.Is(err, service.ErrCeremonyNotFound):
			return nil, commonpkg.NewValidationError("Passkey 注册会话已失效，请重试")
		case errors.Is(err, service.ErrCredentialRejected):
			return nil, commonpkg.NewValidationError("Passkey 注册校验失败，请重试")
		}
		return nil, err
	}

	slog.InfoContext(ctx, "🔑 Passkey 注册成功", "user_id", identity.User.ID, "passkey_id", record.ID)
	return &service.UserPasskey{
		ID:           record.ID,
		CredentialID: record.CredentialID,
		Name:         record.Name,
		CreatedAt:    record.CreatedAt.Unix(),
		SignCount:    record.SignCount,
	}, nil
}

// BeginPasskeyLogin 创建登录挑战。
// email 为空时走 discoverable 流程；邮箱未注册或没有 Passkey 时返回形态一致的诱饵挑战。
func (c *PasskeyUseCase) BeginPasskeyLogin(ctx context.Context, email string) (string, *protocol.CredentialAssertion, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "passkey.begin_login")
	defer span.End()

	if email == "" {
		return c.passkeys.GenerateDiscoverableAuthenticationOptions(ctx)
	}

	normalized, ok, msg := utils.ValidateEmail(email)
	if !ok {
		return "", nil, commonpkg.NewValidationError(msg)
	}

	user, err := c.users.FindByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.DebugContext(ctx, "Passkey 登录使用诱饵挑战", "email", logging.MaskEmail(normalized))
			return c.passkeys.GenerateDecoyAuthenticationOptions(ctx, normalized)
		}
		return "", nil, commonpkg.NewInternalError("读取用户信息失败")
	}

	ceremonyID, assertion, err := c.passkeys.GenerateAuthenticationOptions(ctx, user)
	if errors.Is(err, service.ErrCredentialNotFound) {
		return c.passkeys.GenerateDecoyAuthenticationOptions(ctx, normalized)
	}
	return ceremonyID, assertion, err
}

// FinishPasskeyLogin 校验登录断言并建立会话；所有校验失败对调用方表现一致。
func (c *PasskeyUseCase) FinishPasskeyLogin(ctx context.Context, ceremonyID string, credentialJSON []byte, meta service.SessionMetadata) (*LoginResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "passkey.finish_login")
	defer span.End()

	user, err := c.passkeys.VerifyAuthentication(ctx, ceremonyID, credentialJSON)
	if err != nil {
		if errors.Is(err, service.ErrCounterRegression) {
			slog.WarnContext(ctx, "🚨 Passkey 签名计数回退，疑似认证器被克隆")
		}
		return nil, recordAuthFailure(ctx, c.metrics, flowPasskey, err)
	}

	signed, _, err := c.sessions.Create(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}

	recordAuthSuccess(ctx, c.metrics, flowPasskey, user.ID)
	slog.InfoContext(ctx, "✅ Passkey 登录成功", "user_id", user.ID)
	return &LoginResult{User: user, SignedSession: signed, MaxAge: c.sessions.MaxAge()}, nil
}

// ListPasskeys 返回当前用户的 Passkey 列表。
func (c *PasskeyUseCase) ListPasskeys(ctx context.Context, identity *Identity) ([]service.UserPasskey, error) {
	return c.passkeys.ListUserPasskeys(ctx, identity.User.ID)
}

// RenamePasskey 修改当前用户某个 Passkey 的名称。
func (c *PasskeyUseCase) RenamePasskey(ctx context.Context, identity *Identity, passkeyID uint, name string) error {
	return c.passkeys.UpdateUserPasskeyName(ctx, identity.User.ID, passkeyID, name)
}

// DeletePasskey 删除当前用户的某个 Passkey。
func (c *PasskeyUseCase) DeletePasskey(ctx context.Context, identity *Identity, passkeyID uint) error {
	if err := c.passkeys.DeleteUserPasskey(ctx, identity.User.ID, passkeyID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "🗑️ Passkey 已删除", "user_id", identity.User.ID, "passkey_id", passkeyID)
	return nil
}
