package repository

import (
	"context"
	"stop-spying-server/internal/model"
	"time"

	"gorm.io/gorm"
)

type SessionRepository struct {
	db *gorm.DB
}

func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// TouchActive 查找未过期的会话（连同用户）并刷新 last_activity。
// 刷新以同样的条件执行，会话在查询后被删除时返回 ErrConditionNotMet。
func (r *SessionRepository) TouchActive(ctx context.Context, sessionID uint, tokenHash string, now time.Time) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Joins("User").
			Where("sessions.id = ? AND sessions.token_hash = ? AND sessions.expires_at > ?", sessionID, tokenHash, now).
			First(&session).Error; err != nil {
			return err
		}

		touch := tx.Model(&model.Session{}).
			Where("id = ? AND token_hash = ? AND expires_at > ?", sessionID, tokenHash, now).
			Update("last_activity", now)
		if touch.Error != nil {
			return touch.Error
		}
		if touch.RowsAffected == 0 {
			return ErrConditionNotMet
		}
		session.LastActivity = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) DeleteByIDAndHash(ctx context.Context, sessionID uint, tokenHash string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND token_hash = ?", sessionID, tokenHash).
		Delete(&model.Session{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&model.Session{})
	return result.RowsAffected, result.Error
}
