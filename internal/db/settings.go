package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"remna-bot/internal/syncerr"
)

// GetValue возвращает значение настройки и признак его наличия
func (r *Repository) GetValue(ctx context.Context, key string) (string, bool, error) {
	var setting SystemSetting
	err := r.db.WithContext(ctx).First(&setting, "`key` = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, syncerr.Local("get setting", err)
	}
	return setting.Value, true, nil
}

func (r *Repository) SetValue(ctx context.Context, key, value string) error {
	setting := SystemSetting{Key: key, Value: value}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	return syncerr.Local("set setting", err)
}
