package service

import (
	"errors"

	commonpkg "stop-spying-server/internal/common"
)

// 认证失败的内部分类；仅用于日志与指标，未认证的调用方只会看到统一的失败结果。
var (
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrSignatureInvalid      = errors.New("session signature invalid")
	ErrCredentialNotFound    = errors.New("passkey credential not found")
	ErrCredentialRejected    = errors.New("passkey credential rejected")
	ErrDuplicateCredential   = errors.New("passkey credential already registered")
	ErrCounterRegression     = errors.New("passkey signature counter regression")
	ErrCeremonyNotFound      = errors.New("passkey ceremony not found")
)

// AuthFailureReason 将错误映射为稳定的指标标签。
func AuthFailureReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return "invalid_or_expired_token"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrCredentialNotFound):
		return "credential_not_found"
	case errors.Is(err, ErrCredentialRejected):
		return "credential_rejected"
	case errors.Is(err, ErrDuplicateCredential):
		return "duplicate_credential"
	case errors.Is(err, ErrCounterRegression):
		return "counter_regression"
	case errors.Is(err, ErrCeremonyNotFound):
		return "ceremony_not_found"
	}
	if serviceErr, ok := commonpkg.AsServiceError(err); ok {
		return string(serviceErr.Code)
	}
	return "internal"
}
