package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"remna-bot/internal/batch"
	"remna-bot/internal/db"
	"remna-bot/internal/gates/remnawave"
)

// Orphans - связанные аккаунты, которых нет в панели. Используется для предпросмотра очистки.
func (e *Engine) Orphans(ctx context.Context) ([]db.Account, error) {
	remote, err := e.panel.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch remote users: %w", err)
	}
	return e.orphans(ctx, remoteIDs(remote))
}

func (e *Engine) orphans(ctx context.Context, present map[string]bool) ([]db.Account, error) {
	linked := true
	local, err := e.store.ListAccounts(ctx, db.AccountFilter{Linked: &linked})
	if err != nil {
		return nil, fmt.Errorf("fetch local accounts: %w", err)
	}

	var orphans []db.Account
	for _, acc := range local {
		id, _ := normalizeUUID(*acc.RemnawaveUUID)
		if !present[id] {
			orphans = append(orphans, acc)
		}
	}
	return orphans, nil
}

// ForceCleanupOrphaned безвозвратно удаляет историю, сквады и баланс аккаунтов, которых нет в панели,
// и отвязывает их от панели. Аккаунты, присутствующие в выгрузке панели, не затрагиваются.
func (e *Engine) ForceCleanupOrphaned(ctx context.Context) (*RunStatistics, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	stats := newStats(ModeForceCleanup, e.now())
	slog.Warn("Starting forced cleanup of orphaned accounts")

	remote, err := e.panel.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch remote users: %w", err)
	}
	stats.RemoteTotal = len(remote)

	orphans, err := e.orphans(ctx, remoteIDs(remote))
	if err != nil {
		return nil, err
	}
	stats.LocalTotal = len(orphans)

	outcomes := batch.Run(ctx, orphans, e.batch, func(ctx context.Context, acc db.Account) error {
		return e.store.PurgeAccountData(ctx, acc.ID)
	})
	for _, o := range outcomes {
		if !o.OK() {
			slog.Error("Failed to purge orphaned account", "account_id", o.Item.ID, "error", o.Err)
			stats.addError(fmt.Errorf("purge account %d: %w", o.Item.ID, o.Err))
			continue
		}
		slog.Warn("Purged orphaned account", "account_id", o.Item.ID, "uuid", *o.Item.RemnawaveUUID, "balance", o.Item.Balance)
		stats.Purged++
	}

	stats.FinishedAt = e.now()
	slog.Info("Forced cleanup completed", "purged", stats.Purged, "errors", stats.Errors)
	return stats, nil
}

// remoteIDs включает и некорректные UUID: всё, что есть в выгрузке панели, очистка не трогает
func remoteIDs(remote []remnawave.User) map[string]bool {
	ids := make(map[string]bool, len(remote))
	for _, u := range remote {
		id, _ := normalizeUUID(u.UUID)
		ids[id] = true
	}
	return ids
}
