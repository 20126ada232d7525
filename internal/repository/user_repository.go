package repository

import (
	"context"
	"stop-spying-server/internal/model"
)

type UserStore interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FirstOrCreateByEmail(ctx context.Context, email string) (*model.User, error)
}
