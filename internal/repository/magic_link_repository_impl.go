package repository

import (
	"context"
	"stop-spying-server/internal/model"
	"time"

	"gorm.io/gorm"
)

type MagicLinkTokenRepository struct {
	db *gorm.DB
}

// ReplaceForEmail 在同一事务内删除该邮箱尚未使用的令牌并写入新令牌。
func (r *MagicLinkTokenRepository) ReplaceForEmail(ctx context.Context, token *model.MagicLinkToken) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ? AND used_at IS NULL", token.Email).Delete(&model.MagicLinkToken{}).Error; err != nil {
			return err
		}
		return tx.Create(token).Error
	})
}

// ConsumeByHash 以 used_at IS NULL 为条件抢占令牌，并发请求中只有一个能命中。
func (r *MagicLinkTokenRepository) ConsumeByHash(ctx context.Context, tokenHash string, now time.Time) (*model.MagicLinkToken, error) {
	var token model.MagicLinkToken
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim := tx.Model(&model.MagicLinkToken{}).
			Where("token_hash = ? AND expires_at > ? AND used_at IS NULL", tokenHash, now).
			Update("used_at", now)
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return ErrConditionNotMet
		}
		return tx.Where("token_hash = ?", tokenHash).First(&token).Error
	})
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// DeleteExpired 删除 expires_at <= now 的令牌（无论是否已使用）。
func (r *MagicLinkTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&model.MagicLinkToken{})
	return result.RowsAffected, result.Error
}
