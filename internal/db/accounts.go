package db

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"remna-bot/internal/syncerr"
)

// AccountFilter - условия выборки аккаунтов. Пустые поля не фильтруют
type AccountFilter struct {
	Linked    *bool
	Status    AccountStatus
	SquadUUID string
}

// AccountPatch - частичное обновление аккаунта. nil означает "не трогать".
// Баланс сюда намеренно не входит: синхронизация его не меняет.
type AccountPatch struct {
	Status            *AccountStatus
	RemnawaveUUID     *string
	ShortUUID         *string
	SubscriptionURL   *string
	TrafficUsedBytes  *int64
	TrafficLimitBytes *int64
	ExpiresAt         *time.Time
	LastSeenAt        *time.Time
	SyncedAt          *time.Time
	Squads            *[]string
}

func (p AccountPatch) columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.RemnawaveUUID != nil {
		cols["remnawave_uuid"] = *p.RemnawaveUUID
	}
	if p.ShortUUID != nil {
		cols["short_uuid"] = *p.ShortUUID
	}
	if p.SubscriptionURL != nil {
		cols["subscription_url"] = *p.SubscriptionURL
	}
	if p.TrafficUsedBytes != nil {
		cols["traffic_used_bytes"] = *p.TrafficUsedBytes
	}
	if p.TrafficLimitBytes != nil {
		cols["traffic_limit_bytes"] = *p.TrafficLimitBytes
	}
	if p.ExpiresAt != nil {
		cols["expires_at"] = *p.ExpiresAt
	}
	if p.LastSeenAt != nil {
		cols["last_seen_at"] = *p.LastSeenAt
	}
	if p.SyncedAt != nil {
		cols["synced_at"] = *p.SyncedAt
	}
	return cols
}

func (r *Repository) ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error) {
	q := r.db.WithContext(ctx).Preload("Squads").Order("id ASC")

	if filter.Linked != nil {
		if *filter.Linked {
			q = q.Where("remnawave_uuid IS NOT NULL AND remnawave_uuid <> ''")
		} else {
			q = q.Where("(remnawave_uuid IS NULL OR remnawave_uuid = '')")
		}
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.SquadUUID != "" {
		q = q.Where("id IN (?)", r.db.Model(&AccountSquad{}).Select("account_id").Where("squad_uuid = ?", filter.SquadUUID))
	}

	var accounts []Account
	if err := q.Find(&accounts).Error; err != nil {
		return nil, syncerr.Local("list accounts", err)
	}
	return accounts, nil
}

func (r *Repository) GetAccount(ctx context.Context, id uint) (*Account, error) {
	var acc Account
	err := r.db.WithContext(ctx).Preload("Squads").First(&acc, id).Error
	if err != nil {
		return nil, syncerr.Local("get account", err)
	}
	return &acc, nil
}

// FindAccounts ищет аккаунт по Telegram ID, UUID панели или части username
func (r *Repository) FindAccounts(ctx context.Context, query string, limit int) ([]Account, error) {
	q := r.db.WithContext(ctx).Preload("Squads").Order("id ASC").Limit(limit)
	if tgID, err := strconv.ParseInt(query, 10, 64); err == nil {
		q = q.Where("telegram_id = ?", tgID)
	} else if id, err := uuid.Parse(query); err == nil {
		q = q.Where("remnawave_uuid = ?", id.String())
	} else {
		q = q.Where("username LIKE ?", "%"+strings.TrimPrefix(query, "@")+"%")
	}

	var accounts []Account
	if err := q.Find(&accounts).Error; err != nil {
		return nil, syncerr.Local("find accounts", err)
	}
	return accounts, nil
}

// CreateAccount создаёт аккаунт вместе со сквадами. Если аккаунт с таким RemnawaveUUID уже есть,
// ничего не создаётся, acc заполняется существующей записью и возвращается false.
func (r *Repository) CreateAccount(ctx context.Context, acc *Account) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if acc.IsLinked() {
			var existing Account
			err := tx.Preload("Squads").Where("remnawave_uuid = ?", *acc.RemnawaveUUID).First(&existing).Error
			if err == nil {
				*acc = existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}
		if acc.Status == "" {
			acc.Status = StatusActive
		}
		if err := tx.Create(acc).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, syncerr.Local("create account", err)
	}
	return created, nil
}

func (r *Repository) UpdateAccount(ctx context.Context, id uint, patch AccountPatch) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cols := patch.columns(); len(cols) > 0 {
			res := tx.Model(&Account{}).Where("id = ?", id).Updates(cols)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				var count int64
				if err := tx.Model(&Account{}).Where("id = ?", id).Count(&count).Error; err != nil {
					return err
				}
				if count == 0 {
					return gorm.ErrRecordNotFound
				}
			}
		}
		if patch.Squads != nil {
			return replaceSquads(tx, id, *patch.Squads)
		}
		return nil
	})
	return syncerr.Local("update account", err)
}

func replaceSquads(tx *gorm.DB, accountID uint, squads []string) error {
	if err := tx.Where("account_id = ?", accountID).Delete(&AccountSquad{}).Error; err != nil {
		return err
	}
	if len(squads) == 0 {
		return nil
	}
	links := make([]AccountSquad, 0, len(squads))
	for _, s := range squads {
		links = append(links, AccountSquad{AccountID: accountID, SquadUUID: s})
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
}

// DeactivateAccount отключает аккаунт, не трогая баланс, историю и UUID панели
func (r *Repository) DeactivateAccount(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":           StatusDisabled,
		"short_uuid":       "",
		"subscription_url": "",
	})
	if res.Error != nil {
		return syncerr.Local("deactivate account", res.Error)
	}
	if res.RowsAffected == 0 {
		return syncerr.Local("deactivate account", gorm.ErrRecordNotFound)
	}
	return nil
}

// PurgeAccountData безвозвратно чистит финансовую историю аккаунта и отвязывает его от панели
func (r *Repository) PurgeAccountData(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&Transaction{}, &ReferralEarning{}, &PromoCodeUse{}, &AccountSquad{}} {
			if err := tx.Where("account_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		res := tx.Model(&Account{}).Where("id = ?", id).Updates(map[string]interface{}{
			"balance":          0,
			"remnawave_uuid":   nil,
			"short_uuid":       "",
			"subscription_url": "",
			"status":           StatusDisabled,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return syncerr.Local("purge account", err)
}

// ReplaceSquad переносит аккаунт из source в target и возвращает новый набор сквадов
func (r *Repository) ReplaceSquad(ctx context.Context, accountID uint, source, target string) ([]string, error) {
	var squads []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ? AND squad_uuid = ?", accountID, source).Delete(&AccountSquad{}).Error; err != nil {
			return err
		}
		link := AccountSquad{AccountID: accountID, SquadUUID: target}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			return err
		}
		return tx.Model(&AccountSquad{}).Where("account_id = ?", accountID).
			Order("squad_uuid ASC").Pluck("squad_uuid", &squads).Error
	})
	if err != nil {
		return nil, syncerr.Local("replace squad", err)
	}
	return squads, nil
}

func (r *Repository) CountActiveBySquad(ctx context.Context, squad string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Account{}).
		Where("status = ?", StatusActive).
		Where("id IN (?)", r.db.Model(&AccountSquad{}).Select("account_id").Where("squad_uuid = ?", squad)).
		Count(&count).Error
	if err != nil {
		return 0, syncerr.Local("count accounts", err)
	}
	return count, nil
}

// BalanceTotal - суммарный баланс набора аккаунтов, для предпросмотра очистки
func (r *Repository) BalanceTotal(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var total int64
	err := r.db.WithContext(ctx).Model(&Account{}).Where("id IN ?", ids).
		Select("COALESCE(SUM(balance), 0)").Scan(&total).Error
	if err != nil {
		return 0, syncerr.Local("sum balance", err)
	}
	return total, nil
}
