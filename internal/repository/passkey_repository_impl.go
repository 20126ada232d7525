package repository

import (
	"context"
	"errors"
	"stop-spying-server/internal/model"
	"time"

	"gorm.io/gorm"
)

type PasskeyRepository struct {
	db *gorm.DB
}

// ListPasskeyCredentialsByUserID 返回指定用户的全部 Passkey 凭据记录。
func (r *PasskeyRepository) ListPasskeyCredentialsByUserID(ctx context.Context, userID uint) ([]model.PasskeyCredential, error) {
	var credentials []model.PasskeyCredential
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id asc").Find(&credentials).Error; err != nil {
		return nil, err
	}
	return credentials, nil
}

// CountPasskeyCredentialsByUserID 统计指定用户已绑定的 Passkey 数量。
func (r *PasskeyRepository) CountPasskeyCredentialsByUserID(ctx context.Context, userID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.PasskeyCredential{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindPasskeyCredentialByCredentialID 通过 credential_id 查找凭据（跨全部用户）。
func (r *PasskeyRepository) FindPasskeyCredentialByCredentialID(ctx context.Context, credentialID string) (*model.PasskeyCredential, error) {
	var credential model.PasskeyCredential
	if err := r.db.WithContext(ctx).Where("credential_id = ?", credentialID).First(&credential).Error; err != nil {
		return nil, err
	}
	return &credential, nil
}

// CreatePasskeyCredential 在事务内检查 credential_id 全局唯一与用户数量上限后写入。
// 唯一索引兜底并发注册同一凭据的情况。
func (r *PasskeyRepository) CreatePasskeyCredential(ctx context.Context, credential *model.PasskeyCredential, maxPerUser int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&model.PasskeyCredential{}).
			Where("credential_id = ?", credential.CredentialID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateCredentialID
		}

		if maxPerUser > 0 {
			var owned int64
			if err := tx.Model(&model.PasskeyCredential{}).
				Where("user_id = ?", credential.UserID).
				Count(&owned).Error; err != nil {
				return err
			}
			if owned >= maxPerUser {
				return ErrPasskeyLimitReached
			}
		}

		if err := tx.Create(credential).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateCredentialID
			}
			return err
		}
		return nil
	})
}

// AdvanceSignCount 以旧计数为条件推进签名计数器，并记录最近使用时间。
// 并发登录中计数已被他人推进时返回 ErrConditionNotMet。
func (r *PasskeyRepository) AdvanceSignCount(ctx context.Context, passkeyID uint, expectedCount uint32, newCount uint32, credentialJSON string, usedAt time.Time) error {
	tx := r.db.WithContext(ctx).Model(&model.PasskeyCredential{}).
		Where("id = ? AND sign_count = ?", passkeyID, expectedCount).
		Updates(map[string]interface{}{
			"sign_count":   newCount,
			"credential":   credentialJSON,
			"last_used_at": usedAt,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrConditionNotMet
	}
	return nil
}

// DeletePasskeyCredentialByID 删除指定用户下的某条 Passkey 凭据记录。
func (r *PasskeyRepository) DeletePasskeyCredentialByID(ctx context.Context, userID uint, passkeyID uint) error {
	tx := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, passkeyID).Delete(&model.PasskeyCredential{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdatePasskeyCredentialNameByID 更新指定用户下某条 Passkey 凭据的人类可读名称。
func (r *PasskeyRepository) UpdatePasskeyCredentialNameByID(ctx context.Context, userID uint, passkeyID uint, name string) error {
	tx := r.db.WithContext(ctx).Model(&model.PasskeyCredential{}).
		Where("user_id = ? AND id = ?", userID, passkeyID).
		Update("name", name)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
