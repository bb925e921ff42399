package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"remna-bot/internal/syncerr"
)

func (r *Repository) ListSquads(ctx context.Context) ([]Squad, error) {
	var squads []Squad
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&squads).Error; err != nil {
		return nil, syncerr.Local("list squads", err)
	}
	return squads, nil
}

// GetSquad возвращает nil без ошибки, если сквада нет в каталоге
func (r *Repository) GetSquad(ctx context.Context, id string) (*Squad, error) {
	var squad Squad
	err := r.db.WithContext(ctx).First(&squad, "uuid = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, syncerr.Local("get squad", err)
	}
	return &squad, nil
}

// UpsertSquad сохраняет сквад. created - новая запись, changed - изменились имя или счётчики
func (r *Repository) UpsertSquad(ctx context.Context, squad Squad) (created, changed bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Squad
		findErr := tx.First(&existing, "uuid = ?", squad.UUID).Error
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			created = true
			return tx.Create(&squad).Error
		}
		if findErr != nil {
			return findErr
		}
		if existing.Name == squad.Name &&
			existing.MembersCount == squad.MembersCount &&
			existing.InboundsCount == squad.InboundsCount {
			return nil
		}
		changed = true
		return tx.Model(&existing).Updates(map[string]interface{}{
			"name":           squad.Name,
			"members_count":  squad.MembersCount,
			"inbounds_count": squad.InboundsCount,
		}).Error
	})
	if err != nil {
		return false, false, syncerr.Local("upsert squad", err)
	}
	return created, changed, nil
}

// DeleteSquad убирает сквад из каталога. Подключения аккаунтов не трогаются:
// ими владеет синхронизация аккаунтов.
func (r *Repository) DeleteSquad(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Delete(&Squad{}, "uuid = ?", id).Error
	return syncerr.Local("delete squad", err)
}
