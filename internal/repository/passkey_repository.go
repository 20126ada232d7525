package repository

import (
	"context"
	"stop-spying-server/internal/model"
	"time"
)

type PasskeyStore interface {
	ListPasskeyCredentialsByUserID(ctx context.Context, userID uint) ([]model.PasskeyCredential, error)
	CountPasskeyCredentialsByUserID(ctx context.Context, userID uint) (int64, error)
	FindPasskeyCredentialByCredentialID(ctx context.Context, credentialID string) (*model.PasskeyCredential, error)
	CreatePasskeyCredential(ctx context.Context, credential *model.PasskeyCredential, maxPerUser int64) error
	AdvanceSignCount(ctx context.Context, passkeyID uint, expectedCount uint32, newCount uint32, credentialJSON string, usedAt time.Time) error
	DeletePasskeyCredentialByID(ctx context.Context, userID uint, passkeyID uint) error
	UpdatePasskeyCredentialNameByID(ctx context.Context, userID uint, passkeyID uint, name string) error
}
