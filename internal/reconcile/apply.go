package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"remna-bot/internal/batch"
	"remna-bot/internal/db"
)

func (e *Engine) applyCreates(ctx context.Context, items []*createItem, stats *RunStatistics) {
	outcomes := batch.Run(ctx, items, e.batch, func(ctx context.Context, it *createItem) error {
		now := e.now()
		if it.link != nil {
			patch, _ := mergePatch(it.link, &it.remote)
			id := it.id
			squads := it.remote.SquadIDs()
			patch.RemnawaveUUID = &id
			patch.Squads = &squads
			patch.SyncedAt = &now
			if err := e.store.UpdateAccount(ctx, it.link.ID, patch); err != nil {
				return err
			}
			it.linked = true
			return nil
		}

		created, err := e.store.CreateAccount(ctx, accountFromRemote(it.id, &it.remote, now))
		if err != nil {
			return err
		}
		it.created = created
		return nil
	})

	for _, o := range outcomes {
		switch {
		case !o.OK():
			slog.Error("Failed to create local account", "uuid", o.Item.id, "username", o.Item.remote.Username, "error", o.Err)
			stats.addError(fmt.Errorf("create %s: %w", o.Item.id, o.Err))
		case o.Item.linked:
			slog.Info("Linked local account to panel user", "account_id", o.Item.link.ID, "uuid", o.Item.id)
			stats.Updated++
		case o.Item.created:
			stats.Created++
		}
	}
}

func (e *Engine) applyUpdates(ctx context.Context, items []*updateItem, stats *RunStatistics) {
	outcomes := batch.Run(ctx, items, e.batch, func(ctx context.Context, it *updateItem) error {
		patch, changed := mergePatch(&it.local, &it.remote)
		if !changed {
			return nil
		}
		now := e.now()
		patch.SyncedAt = &now
		if err := e.store.UpdateAccount(ctx, it.local.ID, patch); err != nil {
			return err
		}
		it.changed = true
		return nil
	})

	for _, o := range outcomes {
		if !o.OK() {
			slog.Error("Failed to update local account", "account_id", o.Item.local.ID, "error", o.Err)
			stats.addError(fmt.Errorf("update account %d: %w", o.Item.local.ID, o.Err))
			continue
		}
		if o.Item.changed {
			stats.Updated++
		}
	}
}

func (e *Engine) applyDeactivations(ctx context.Context, accounts []db.Account, stats *RunStatistics) {
	outcomes := batch.Run(ctx, accounts, e.batch, func(ctx context.Context, acc db.Account) error {
		return e.store.DeactivateAccount(ctx, acc.ID)
	})

	for _, o := range outcomes {
		if !o.OK() {
			slog.Error("Failed to deactivate local account", "account_id", o.Item.ID, "error", o.Err)
			stats.addError(fmt.Errorf("deactivate account %d: %w", o.Item.ID, o.Err))
			continue
		}
		slog.Info("Deactivated account missing from panel", "account_id", o.Item.ID, "uuid", *o.Item.RemnawaveUUID)
		stats.Deactivated++
	}
}

// syncSquads обновляет локальный каталог сквадов. Ошибка чтения каталога панели не прерывает прогон.
func (e *Engine) syncSquads(ctx context.Context, stats *RunStatistics) {
	remote, err := e.panel.ListSquads(ctx)
	if err != nil {
		slog.Error("Failed to fetch panel squads", "error", err)
		stats.addGroupError(fmt.Errorf("fetch squads: %w", err))
		return
	}

	seen := make(map[string]bool, len(remote))
	for _, s := range remote {
		id, ok := normalizeUUID(s.UUID)
		if !ok {
			stats.addGroupError(fmt.Errorf("squad %q: malformed uuid %q", s.Name, s.UUID))
			continue
		}
		seen[id] = true

		created, changed, err := e.store.UpsertSquad(ctx, db.Squad{
			UUID:          id,
			Name:          s.Name,
			MembersCount:  s.Info.MembersCount,
			InboundsCount: s.Info.InboundsCount,
		})
		switch {
		case err != nil:
			slog.Error("Failed to save squad", "uuid", id, "error", err)
			stats.addGroupError(err)
		case created:
			stats.GroupsCreated++
		case changed:
			stats.GroupsUpdated++
		}
	}

	local, err := e.store.ListSquads(ctx)
	if err != nil {
		stats.addGroupError(err)
		return
	}
	for _, s := range local {
		if seen[s.UUID] {
			continue
		}
		if err := e.store.DeleteSquad(ctx, s.UUID); err != nil {
			slog.Error("Failed to remove squad", "uuid", s.UUID, "error", err)
			stats.addGroupError(err)
			continue
		}
		stats.GroupsRemoved++
	}
}
