package repository

import (
	"context"
	"stop-spying-server/internal/model"
	"time"
)

type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	TouchActive(ctx context.Context, sessionID uint, tokenHash string, now time.Time) (*model.Session, error)
	DeleteByIDAndHash(ctx context.Context, sessionID uint, tokenHash string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
