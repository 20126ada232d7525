package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	commonpkg "stop-spying-server/internal/common"
	"stop-spying-server/internal/consts"
	"stop-spying-server/internal/model"
	repo "stop-spying-server/internal/repository"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"gorm.io/gorm"
)

// UserPasskey 是返回给前端的用户 Passkey 列表项。
type UserPasskey struct {
	ID             uint     `json:"id"`
	CredentialID   string   `json:"credential_id"`
	Name           string   `json:"name"`
	CreatedAt      int64    `json:"created_at"`
	LastUsedAt     *int64   `json:"last_used_at"`
	SignCount      uint32   `json:"sign_count"`
	Attachment     string   `json:"attachment"`
	Transports     []string `json:"transports"`
	BackupEligible bool     `json:"backup_eligible"`
	BackupState    bool     `json:"backup_state"`
	UserVerified   bool     `json:"user_verified"`
}

// GenerateRegistrationOptions 为已登录用户创建注册挑战，返回一次性仪式 ID 与前端所需选项。
func (s *PasskeyService) GenerateRegistrationOptions(ctx context.Context, user *model.User) (string, *protocol.CredentialCreation, error) {
	// 先校验容量上限，避免在已达上限时仍创建挑战造成无效流程。
	if err := s.ensureUserPasskeyCapacity(ctx, user.ID); err != nil {
		return "", nil, err
	}

	passkeyUser, err := s.loadWebAuthnUser(ctx, user)
	if err != nil {
		return "", nil, err
	}

	creation, sessionData, err := s.webauthn.BeginRegistration(
		passkeyUser,
		webauthn.WithCredentialParameters(passkeyCredentialParameters()),
		// 要求创建可发现凭据（Resident Key），用于“无需邮箱”的 Passkey 登录。
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		// 将已绑定凭据放入排除列表，阻止同一凭据重复注册。
		webauthn.WithExclusions(webauthn.Credentials(passkeyUser.credentials).CredentialDescriptors()),
		webauthn.WithExtensions(protocol.AuthenticationExtensions{"credProps": true}),
	)
	if err != nil {
		return "", nil, commonpkg.NewInternalError("创建 Passkey 注册挑战失败")
	}

	ceremonyID, err := s.ceremonies.Save(ctx, CeremonyEntry{
		Type:        consts.PasskeySessionRegistration,
		UserID:      user.ID,
		SessionData: *sessionData,
	})
	if err != nil {
		return "", nil, commonpkg.NewInternalError("创建 Passkey 注册会话失败")
	}
	return ceremonyID, creation, nil
}

// VerifyRegistration 校验注册响应（挑战、来源、RP ID、签名、算法）并持久化凭据。
// 任何一步失败都不会写入数据。
func (s *PasskeyService) VerifyRegistration(ctx context.Context, user *model.User, ceremonyID string, credentialJSON []byte, label string) (*model.PasskeyCredential, error) {
	entry, err := s.ceremonies.Consume(ctx, ceremonyID, consts.PasskeySessionRegistration)
	if err != nil {
		return nil, err
	}
	// 注册挑战必须与当前登录用户一致，避免跨账号完成绑定。
	if entry.UserID != user.ID {
		return nil, ErrCeremonyNotFound
	}

	trimmed := bytes.TrimSpace(credentialJSON)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty credential", ErrCredentialRejected)
	}
	parsed, err := protocol.ParseCredentialCreationResponseBytes(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialRejected, err)
	}

	passkeyUser, err := s.loadWebAuthnUser(ctx, user)
	if err != nil {
		return nil, err
	}

	credential, err := s.webauthn.CreateCredential(passkeyUser, entry.SessionData, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialRejected, err)
	}

	alg, err := extractPasskeyCredentialAlgorithm(credential)
	if err != nil || !isPasskeyAlgorithmAllowed(alg) {
		return nil, fmt.Errorf("%w: algorithm not allowed", ErrCredentialRejected)
	}

	credentialID := encodePasskeyCredentialID(credential.ID)
	name := label
	if name == "" {
		name = buildDefaultPasskeyName(credentialID)
	}
	name, err = normalizePasskeyName(name)
	if err != nil {
		return nil, err
	}

	// 计数器从 0 起算，后续每次登录都必须严格递增。
	credential.Authenticator.SignCount = 0
	serialized, err := marshalPasskeyCredential(credential)
	if err != nil {
		return nil, commonpkg.NewInternalError("保存 Passkey 失败")
	}

	record := &model.PasskeyCredential{
		UserID:       user.ID,
		CredentialID: credentialID,
		PublicKey:    credential.PublicKey,
		SignCount:    0,
		Name:         name,
		Credential:   serialized,
	}
	if err := s.passkeys.CreatePasskeyCredential(ctx, record, s.maxPerUser); err != nil {
		switch {
		case errors.Is(err, repo.ErrDuplicateCredentialID):
			return nil, ErrDuplicateCredential
		case errors.Is(err, repo.ErrPasskeyLimitReached):
			return nil, passkeyLimitError(s.maxPerUser)
		}
		return nil, commonpkg.NewInternalError("保存 Passkey 失败")
	}
	return record, nil
}

// GenerateAuthenticationOptions 为指定用户创建登录挑战，允许列表为其全部已绑定凭据。
// 用户没有任何凭据时返回 ErrCredentialNotFound。
func (s *PasskeyService) GenerateAuthenticationOptions(ctx context.Context, user *model.User) (string, *protocol.CredentialAssertion, error) {
	passkeyUser, err := s.loadWebAuthnUser(ctx, user)
	if err != nil {
		return "", nil, err
	}
	if len(passkeyUser.credentials) == 0 {
		return "", nil, ErrCredentialNotFound
	}

	assertion, sessionData, err := s.webauthn.BeginLogin(
		passkeyUser,
		webauthn.WithUserVerification(protocol.VerificationPreferred),
	)
	if err != nil {
		return "", nil, commonpkg.NewInternalError("创建 Passkey 登录挑战失败")
	}
	return s.saveLoginCeremony(ctx, user.ID, false, sessionData, assertion)
}

// GenerateDiscoverableAuthenticationOptions 创建无邮箱（discoverable）的登录挑战，
// 由认证器返回的 userHandle 决定用户。
func (s *PasskeyService) GenerateDiscoverableAuthenticationOptions(ctx context.Context) (string, *protocol.CredentialAssertion, error) {
	assertion, sessionData, err := s.webauthn.BeginDiscoverableLogin(
		webauthn.WithUserVerification(protocol.VerificationPreferred),
	)
	if err != nil {
		return "", nil, commonpkg.NewInternalError("创建 Passkey 登录挑战失败")
	}
	return s.saveLoginCeremony(ctx, 0, false, sessionData, assertion)
}

// GenerateDecoyAuthenticationOptions 为未知邮箱创建形态一致的登录挑战，完成时必定失败。
func (s *PasskeyService) GenerateDecoyAuthenticationOptions(ctx context.Context, email string) (string, *protocol.CredentialAssertion, error) {
	decoyUser := &passkeyWebAuthnUser{
		email: email,
		id:    s.decoyCredentialID("user:" + email),
		credentials: []webauthn.Credential{{
			ID:        s.decoyCredentialID(email),
			Transport: []protocol.AuthenticatorTransport{protocol.Internal, protocol.Hybrid},
		}},
	}

	assertion, sessionData, err := s.webauthn.BeginLogin(
		decoyUser,
		webauthn.WithUserVerification(protocol.VerificationPreferred),
	)
	if err != nil {
		return "", nil, commonpkg.NewInternalError("创建 Passkey 登录挑战失败")
	}
	return s.saveLoginCeremony(ctx, 0, true, sessionData, assertion)
}

func (s *PasskeyService) saveLoginCeremony(ctx context.Context, userID uint, decoy bool, sessionData *webauthn.SessionData, assertion *protocol.CredentialAssertion) (string, *protocol.CredentialAssertion, error) {
	// 登录挑战同样只在服务端保存 SessionData，前端仅持有仪式 ID。
	ceremonyID, err := s.ceremonies.Save(ctx, CeremonyEntry{
		Type:        consts.PasskeySessionLogin,
		UserID:      userID,
		Decoy:       decoy,
		SessionData: *sessionData,
	})
	if err != nil {
		return "", nil, commonpkg.NewInternalError("创建 Passkey 登录会话失败")
	}
	return ceremonyID, assertion, nil
}

// VerifyAuthentication 校验登录断言：定位凭据、验签、检查签名计数严格递增，
// 成功后以旧计数为条件推进计数器并返回凭据所属用户。
func (s *PasskeyService) VerifyAuthentication(ctx context.Context, ceremonyID string, credentialJSON []byte) (*model.User, error) {
	// 登录挑战一次性消费，防止断言重放。
	entry, err := s.ceremonies.Consume(ctx, ceremonyID, consts.PasskeySessionLogin)
	if err != nil {
		return nil, err
	}
	if entry.Decoy {
		return nil, fmt.Errorf("%w: decoy ceremony", ErrCredentialRejected)
	}

	trimmed := bytes.TrimSpace(credentialJSON)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty credential", ErrCredentialRejected)
	}
	parsed, err := protocol.ParseCredentialRequestResponseBytes(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialRejected, err)
	}

	record, err := s.passkeys.FindPasskeyCredentialByCredentialID(ctx, encodePasskeyCredentialID(parsed.RawID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, commonpkg.NewInternalError("读取 Passkey 失败")
	}
	if entry.UserID != 0 && record.UserID != entry.UserID {
		return nil, fmt.Errorf("%w: credential not bound to ceremony user", ErrCredentialRejected)
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, commonpkg.NewInternalError("读取用户信息失败")
	}
	passkeyUser, err := s.loadWebAuthnUser(ctx, user)
	if err != nil {
		return nil, err
	}

	var validated *webauthn.Credential
	if entry.UserID != 0 {
		validated, err = s.webauthn.ValidateLogin(passkeyUser, entry.SessionData, parsed)
	} else {
		_, validated, err = s.webauthn.ValidatePasskeyLogin(
			func(rawID, userHandle []byte) (webauthn.User, error) {
				// discoverable 流程下 userHandle 由认证器返回，必须指向凭据的所有者。
				handleUserID, parseErr := parsePasskeyUserHandle(userHandle)
				if parseErr != nil {
					return nil, parseErr
				}
				if handleUserID != record.UserID {
					return nil, errors.New("user handle does not own credential")
				}
				return passkeyUser, nil
			},
			entry.SessionData,
			parsed,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialRejected, err)
	}

	if validated.Authenticator.CloneWarning {
		return nil, ErrCounterRegression
	}

	serialized, err := marshalPasskeyCredential(validated)
	if err != nil {
		return nil, commonpkg.NewInternalError("保存 Passkey 失败")
	}
	if err := s.passkeys.AdvanceSignCount(ctx, record.ID, record.SignCount, validated.Authenticator.SignCount, serialized, s.now().UTC()); err != nil {
		if errors.Is(err, repo.ErrConditionNotMet) {
			// 同一计数值被并发使用，或凭据已被删除。
			return nil, ErrCounterRegression
		}
		return nil, commonpkg.NewInternalError("保存 Passkey 失败")
	}
	return user, nil
}

// ListUserPasskeys 返回指定用户已绑定的 Passkey 列表。
func (s *PasskeyService) ListUserPasskeys(ctx context.Context, userID uint) ([]UserPasskey, error) {
	records, err := s.passkeys.ListPasskeyCredentialsByUserID(ctx, userID)
	if err != nil {
		return nil, commonpkg.NewInternalError("读取 Passkey 列表失败")
	}

	items := make([]UserPasskey, 0, len(records))
	for _, record := range records {
		item := UserPasskey{
			ID:           record.ID,
			CredentialID: record.CredentialID,
			Name:         record.Name,
			CreatedAt:    record.CreatedAt.Unix(),
			SignCount:    record.SignCount,
		}
		if record.LastUsedAt != nil {
			lastUsed := record.LastUsedAt.Unix()
			item.LastUsedAt = &lastUsed
		}

		// 列表查询采用“尽力解析”策略：单条损坏不影响整体列表返回。
		if credential, err := unmarshalPasskeyCredential(&record); err == nil {
			item.Attachment = string(credential.Authenticator.Attachment)
			item.Transports = convertPasskeyTransports(credential.Transport)
			item.BackupEligible = credential.Flags.BackupEligible
			item.BackupState = credential.Flags.BackupState
			item.UserVerified = credential.Flags.UserVerified
		}
		items = append(items, item)
	}
	return items, nil
}

// UpdateUserPasskeyName 修改指定用户名下某个 Passkey 的名称。
func (s *PasskeyService) UpdateUserPasskeyName(ctx context.Context, userID uint, passkeyID uint, name string) error {
	if passkeyID == 0 {
		return commonpkg.NewValidationError("无效的 Passkey ID")
	}
	normalized, err := normalizePasskeyName(name)
	if err != nil {
		return err
	}

	if err := s.passkeys.UpdatePasskeyCredentialNameByID(ctx, userID, passkeyID, normalized); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return commonpkg.NewNotFoundError("Passkey 不存在")
		}
		return commonpkg.NewInternalError("修改 Passkey 名称失败")
	}
	return nil
}

// DeleteUserPasskey 删除指定用户名下的某个 Passkey。
func (s *PasskeyService) DeleteUserPasskey(ctx context.Context, userID uint, passkeyID uint) error {
	if passkeyID == 0 {
		return commonpkg.NewValidationError("无效的 Passkey ID")
	}

	if err := s.passkeys.DeletePasskeyCredentialByID(ctx, userID, passkeyID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return commonpkg.NewNotFoundError("Passkey 不存在")
		}
		return commonpkg.NewInternalError("删除 Passkey 失败")
	}
	return nil
}

func (s *PasskeyService) ensureUserPasskeyCapacity(ctx context.Context, userID uint) error {
	count, err := s.passkeys.CountPasskeyCredentialsByUserID(ctx, userID)
	if err != nil {
		return commonpkg.NewInternalError("校验 Passkey 数量失败")
	}
	if count >= s.maxPerUser {
		return passkeyLimitError(s.maxPerUser)
	}
	return nil
}

func passkeyLimitError(limit int64) error {
	return commonpkg.NewConflictError(fmt.Sprintf("Passkey 数量已达上限（最多 %d 个）", limit))
}

func convertPasskeyTransports(transports []protocol.AuthenticatorTransport) []string {
	result := make([]string, 0, len(transports))
	for _, transport := range transports {
		result = append(result, string(transport))
	}
	return result
}
