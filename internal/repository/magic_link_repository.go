package repository

import (
	"context"
	"stop-spying-server/internal/model"
	"time"
)

type MagicLinkTokenStore interface {
	ReplaceForEmail(ctx context.Context, token *model.MagicLinkToken) error
	ConsumeByHash(ctx context.Context, tokenHash string, now time.Time) (*model.MagicLinkToken, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
