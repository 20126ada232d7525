package repository

import "errors"

var (
	// ErrConditionNotMet 条件更新未命中任何行（已被并发消费、已过期或已删除）。
	ErrConditionNotMet = errors.New("conditional update matched no rows")
	// ErrDuplicateCredentialID credential_id 已被任意用户绑定。
	ErrDuplicateCredentialID = errors.New("credential id already registered")
	// ErrPasskeyLimitReached 用户 Passkey 数量已达上限。
	ErrPasskeyLimitReached = errors.New("passkey limit reached")
)
