// Package migration переносит активные аккаунты из одного сквада панели в другой.
// Локальное изменение не откатывается при ошибке панели: расхождение исправит следующая синхронизация.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"remna-bot/internal/batch"
	"remna-bot/internal/db"
	"remna-bot/internal/gates/remnawave"
	"remna-bot/internal/syncerr"
)

type Store interface {
	GetSquad(ctx context.Context, id string) (*db.Squad, error)
	ListAccounts(ctx context.Context, filter db.AccountFilter) ([]db.Account, error)
	ReplaceSquad(ctx context.Context, accountID uint, source, target string) ([]string, error)
	CountActiveBySquad(ctx context.Context, squad string) (int64, error)
}

type Panel interface {
	UpdateUserSquads(ctx context.Context, userUUID string, squads []string) error
}

// Plan - запрос на перенос. Affected заполняет Prepare
type Plan struct {
	Source   string `validate:"required,max=64"`
	Target   string `validate:"required,max=64,nefield=Source"`
	Affected int64  `validate:"-"`
}

type Result struct {
	Total        int
	Updated      int
	PanelUpdated int
	PanelFailed  int
	// LocalFailed - аккаунты, которые не удалось перенести даже локально
	LocalFailed int
}

type Migrator struct {
	store    Store
	panel    Panel
	batch    batch.Options
	validate *validator.Validate
}

func NewMigrator(store Store, panel Panel, opts batch.Options) *Migrator {
	return &Migrator{
		store:    store,
		panel:    panel,
		batch:    opts,
		validate: validator.New(),
	}
}

// CountActiveAccountsForGroup - сколько активных аккаунтов подключено к скваду
func (m *Migrator) CountActiveAccountsForGroup(ctx context.Context, id string) (int64, error) {
	return m.store.CountActiveBySquad(ctx, id)
}

// Prepare проверяет запрос и считает затронутые аккаунты для подтверждения администратором
func (m *Migrator) Prepare(ctx context.Context, source, target string) (*Plan, error) {
	plan := &Plan{Source: source, Target: target}
	if err := m.check(ctx, plan); err != nil {
		return nil, err
	}
	count, err := m.store.CountActiveBySquad(ctx, source)
	if err != nil {
		return nil, err
	}
	plan.Affected = count
	return plan, nil
}

func (m *Migrator) check(ctx context.Context, plan *Plan) error {
	if err := m.validate.Struct(plan); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "nefield" {
				return syncerr.Validationf("target", "source and target squads must differ")
			}
			return syncerr.Validationf(fe.Field(), "failed on %q", fe.Tag())
		}
		return err
	}

	target, err := m.store.GetSquad(ctx, plan.Target)
	if err != nil {
		return err
	}
	if target == nil {
		return syncerr.Validationf("target", "squad %s not found", plan.Target)
	}
	return nil
}

type moveItem struct {
	acc    db.Account
	squads []string
	moved  bool
}

// Migrate переносит все активные аккаунты из source в target
func (m *Migrator) Migrate(ctx context.Context, source, target string) (*Result, error) {
	plan := &Plan{Source: source, Target: target}
	if err := m.check(ctx, plan); err != nil {
		return nil, err
	}

	result := &Result{}

	src, err := m.store.GetSquad(ctx, source)
	if err != nil {
		return nil, err
	}
	if src == nil {
		slog.Info("Source squad not found, nothing to migrate", "source", source)
		return result, nil
	}

	accounts, err := m.store.ListAccounts(ctx, db.AccountFilter{Status: db.StatusActive, SquadUUID: source})
	if err != nil {
		return nil, fmt.Errorf("list accounts in squad %s: %w", source, err)
	}
	result.Total = len(accounts)

	items := make([]*moveItem, len(accounts))
	for i, acc := range accounts {
		items[i] = &moveItem{acc: acc}
	}

	outcomes := batch.Run(ctx, items, m.batch, func(ctx context.Context, it *moveItem) error {
		squads, err := m.store.ReplaceSquad(ctx, it.acc.ID, source, target)
		if err != nil {
			return err
		}
		it.squads = squads
		it.moved = true

		if !it.acc.IsLinked() {
			return fmt.Errorf("account %d is not linked to panel", it.acc.ID)
		}
		return m.panel.UpdateUserSquads(ctx, *it.acc.RemnawaveUUID, squads)
	})

	for _, o := range outcomes {
		it := o.Item
		if !it.moved {
			slog.Error("Failed to move account to squad", "account_id", it.acc.ID, "error", o.Err)
			result.LocalFailed++
			continue
		}
		result.Updated++
		if o.OK() {
			result.PanelUpdated++
			continue
		}
		slog.Warn("Squad migration not applied in panel",
			"account_id", it.acc.ID,
			"missing_in_panel", remnawave.IsNotFound(o.Err),
			"error", o.Err)
		result.PanelFailed++
	}

	slog.Info("Squad migration completed",
		"source", source,
		"target", target,
		"total", result.Total,
		"updated", result.Updated,
		"panel_updated", result.PanelUpdated,
		"panel_failed", result.PanelFailed,
		"failed", batch.Failed(outcomes))
	return result, nil
}
