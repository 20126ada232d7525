package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	commonpkg "stop-spying-server/internal/common"
	"stop-spying-server/internal/consts"
	"stop-spying-server/internal/model"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/go-webauthn/webauthn/webauthn"
)

// passkeyAllowedCOSEAlgorithms 是注册时接受的签名算法白名单。
var passkeyAllowedCOSEAlgorithms = []webauthncose.COSEAlgorithmIdentifier{
	webauthncose.AlgES256,
	webauthncose.AlgEdDSA,
	webauthncose.AlgRS256,
}

type passkeyStoredCredential struct {
	ID              []byte                            `json:"id"`
	PublicKey       []byte                            `json:"publicKey"`
	AttestationType string                            `json:"attestationType"`
	Transport       []protocol.AuthenticatorTransport `json:"transport"`
	Flags           webauthn.CredentialFlags          `json:"flags"`
	Authenticator   webauthn.Authenticator            `json:"authenticator"`
}

// passkeyWebAuthnUser 适配 webauthn.User；WebAuthnID 为十进制用户 ID。
type passkeyWebAuthnUser struct {
	userID      uint
	email       string
	id          []byte
	credentials []webauthn.Credential
}

func (u *passkeyWebAuthnUser) WebAuthnID() []byte {
	return u.id
}

func (u *passkeyWebAuthnUser) WebAuthnName() string {
	return u.email
}

func (u *passkeyWebAuthnUser) WebAuthnDisplayName() string {
	return u.email
}

func (u *passkeyWebAuthnUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

func newWebAuthnClient(opts PasskeyOptions) (*webauthn.WebAuthn, error) {
	origin := strings.TrimRight(strings.TrimSpace(opts.Origin), "/")
	parsedOrigin, err := url.Parse(origin)
	if err != nil || parsedOrigin.Scheme == "" || parsedOrigin.Host == "" {
		return nil, errors.New("webauthn origin must be an absolute URL")
	}

	rpID := strings.TrimSpace(opts.RPID)
	if rpID == "" {
		// RPID 必须是 host（不含端口/协议）。
		rpID = parsedOrigin.Hostname()
	}
	rpName := strings.TrimSpace(opts.RPName)
	if rpName == "" {
		rpName = consts.ApplicationName
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	timeouts := webauthn.TimeoutConfig{Enforce: true, Timeout: timeout, TimeoutUVD: timeout}

	return webauthn.New(&webauthn.Config{
		RPDisplayName: rpName,
		RPID:          rpID,
		RPOrigins:     []string{parsedOrigin.Scheme + "://" + parsedOrigin.Host},
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: protocol.VerificationPreferred,
		},
		Timeouts: webauthn.TimeoutsConfig{Login: timeouts, Registration: timeouts},
	})
}

// loadWebAuthnUser 组装用户及其全部凭据；签名计数以数据库列为准。
func (s *PasskeyService) loadWebAuthnUser(ctx context.Context, user *model.User) (*passkeyWebAuthnUser, error) {
	records, err := s.passkeys.ListPasskeyCredentialsByUserID(ctx, user.ID)
	if err != nil {
		return nil, commonpkg.NewInternalError("读取 Passkey 失败")
	}

	credentials := make([]webauthn.Credential, 0, len(records))
	for _, record := range records {
		credential, err := unmarshalPasskeyCredential(&record)
		if err != nil {
			return nil, commonpkg.NewInternalError("Passkey 数据损坏，请重新绑定")
		}
		credentials = append(credentials, *credential)
	}

	return &passkeyWebAuthnUser{
		userID:      user.ID,
		email:       user.Email,
		id:          passkeyUserHandle(user.ID),
		credentials: credentials,
	}, nil
}

func unmarshalPasskeyCredential(record *model.PasskeyCredential) (*webauthn.Credential, error) {
	var stored passkeyStoredCredential
	if err := json.Unmarshal([]byte(record.Credential), &stored); err != nil {
		return nil, err
	}
	credential := &webauthn.Credential{
		ID:              stored.ID,
		PublicKey:       record.PublicKey,
		AttestationType: stored.AttestationType,
		Transport:       stored.Transport,
		Flags:           stored.Flags,
		Authenticator:   stored.Authenticator,
	}
	credential.Authenticator.SignCount = record.SignCount
	credential.Authenticator.CloneWarning = false
	return credential, nil
}

// marshalPasskeyCredential 将凭据序列化为存储用 JSON（不包含 Attestation 大字段）。
func marshalPasskeyCredential(credential *webauthn.Credential) (string, error) {
	if credential == nil {
		return "", errors.New("credential is nil")
	}

	raw, err := json.Marshal(passkeyStoredCredential{
		ID:              credential.ID,
		PublicKey:       credential.PublicKey,
		AttestationType: credential.AttestationType,
		Transport:       credential.Transport,
		Flags:           credential.Flags,
		Authenticator:   credential.Authenticator,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func passkeyCredentialParameters() []protocol.CredentialParameter {
	params := make([]protocol.CredentialParameter, 0, len(passkeyAllowedCOSEAlgorithms))
	for _, alg := range passkeyAllowedCOSEAlgorithms {
		params = append(params, protocol.CredentialParameter{
			Type:      protocol.PublicKeyCredentialType,
			Algorithm: alg,
		})
	}
	return params
}

func isPasskeyAlgorithmAllowed(alg webauthncose.COSEAlgorithmIdentifier) bool {
	for _, allowed := range passkeyAllowedCOSEAlgorithms {
		if allowed == alg {
			return true
		}
	}
	return false
}

// extractPasskeyCredentialAlgorithm 从凭据公钥中解析 COSE 算法标识。
func extractPasskeyCredentialAlgorithm(credential *webauthn.Credential) (webauthncose.COSEAlgorithmIdentifier, error) {
	if credential.Attestation.PublicKeyAlgorithm != 0 {
		return webauthncose.COSEAlgorithmIdentifier(credential.Attestation.PublicKeyAlgorithm), nil
	}

	var publicKey webauthncose.PublicKeyData
	if err := webauthncbor.Unmarshal(credential.PublicKey, &publicKey); err != nil {
		return 0, err
	}
	return webauthncose.COSEAlgorithmIdentifier(publicKey.Algorithm), nil
}

func passkeyUserHandle(userID uint) []byte {
	return []byte(strconv.FormatUint(uint64(userID), 10))
}

// parsePasskeyUserHandle 将 discoverable 登录返回的 userHandle 解析为用户 ID。
func parsePasskeyUserHandle(userHandle []byte) (uint, error) {
	if len(userHandle) == 0 {
		return 0, errors.New("user handle is empty")
	}
	parsed, err := strconv.ParseUint(string(userHandle), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid user handle")
	}
	if parsed > uint64(^uint(0)) {
		return 0, errors.New("user handle overflows uint")
	}
	return uint(parsed), nil
}

func encodePasskeyCredentialID(credentialID []byte) string {
	return base64.RawURLEncoding.EncodeToString(credentialID)
}

// decoyCredentialID 为未知邮箱生成稳定的伪凭据 ID，同一进程内对同一邮箱保持一致。
func (s *PasskeyService) decoyCredentialID(email string) []byte {
	mac := hmac.New(sha256.New, s.decoySalt)
	mac.Write([]byte(email))
	return mac.Sum(nil)[:16]
}

func buildDefaultPasskeyName(credentialID string) string {
	short := credentialID
	if len(short) > 8 {
		short = short[:8]
	}
	return "Passkey-" + short
}

// normalizePasskeyName 清洗并校验用户输入的 Passkey 名称。
func normalizePasskeyName(name string) (string, error) {
	normalized := strings.TrimSpace(name)
	if normalized == "" {
		return "", commonpkg.NewValidationError("Passkey 名称不能为空")
	}
	if utf8.RuneCountInString(normalized) > consts.PasskeyNameMaxRunes {
		return "", commonpkg.NewValidationError("Passkey 名称长度不能超过 100 个字符")
	}
	return normalized, nil
}
