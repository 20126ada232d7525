package repository

import (
	"context"
	"fmt"
	"stop-spying-server/internal/db"
	"stop-spying-server/internal/model"
	"time"

	"gorm.io/gorm"
)

type SystemRepository struct {
	db *gorm.DB
}

func (r *SystemRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *SystemRepository) Stats(ctx context.Context) (*SystemStats, error) {
	var stats SystemStats
	gdb := r.db.WithContext(ctx)
	if err := gdb.Model(&model.User{}).Count(&stats.Users).Error; err != nil {
		return nil, err
	}
	if err := gdb.Model(&model.Session{}).Where("expires_at > ?", time.Now().UTC()).Count(&stats.ActiveSessions).Error; err != nil {
		return nil, err
	}
	if err := gdb.Model(&model.PasskeyCredential{}).Count(&stats.Passkeys).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *SystemRepository) SchemaReady(ctx context.Context) error {
	migrator := r.db.WithContext(ctx).Migrator()
	for _, m := range db.Models() {
		if !migrator.HasTable(m) {
			return fmt.Errorf("数据表缺失: %T", m)
		}
	}
	return nil
}
