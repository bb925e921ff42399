package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"remna-bot/internal/batch"
	"remna-bot/internal/db"
	"remna-bot/internal/gates/remnawave"
)

// срок для аккаунтов без даты окончания: панель требует expireAt
const unlimitedExpiry = 100 * 365 * 24 * time.Hour

type pushItem struct {
	acc db.Account
	// remote - пользователь панели, найденный по UUID, Telegram ID или имени
	remote *remnawave.User

	linked        bool
	remoteCreated bool
	remoteUpdated bool
}

// PushLocalToRemote восстанавливает панель по локальной базе: создаёт пользователей для активных
// аккаунтов без пары в панели и выравнивает сквады, если они разошлись.
func (e *Engine) PushLocalToRemote(ctx context.Context) (*RunStatistics, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	stats := newStats(ModePush, e.now())
	slog.Info("Starting push of local accounts to panel")

	remote, err := e.panel.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch remote users: %w", err)
	}
	active, err := e.store.ListAccounts(ctx, db.AccountFilter{Status: db.StatusActive})
	if err != nil {
		return nil, fmt.Errorf("fetch local accounts: %w", err)
	}
	stats.RemoteTotal = len(remote)
	stats.LocalTotal = len(active)

	byID := make(map[string]*remnawave.User, len(remote))
	byTg := make(map[int64]*remnawave.User)
	byName := make(map[string]*remnawave.User, len(remote))
	for i := range remote {
		u := &remote[i]
		id, _ := normalizeUUID(u.UUID)
		byID[id] = u
		if u.TelegramID != nil {
			byTg[*u.TelegramID] = u
		}
		if u.Username != "" {
			byName[u.Username] = u
		}
	}

	// пользователи панели, уже связанные с локальными аккаунтами, по имени не привязываются
	claimed := make(map[string]bool, len(active))
	for _, acc := range active {
		if acc.IsLinked() {
			id, _ := normalizeUUID(*acc.RemnawaveUUID)
			claimed[id] = true
		}
	}
	free := func(u *remnawave.User) bool {
		id, _ := normalizeUUID(u.UUID)
		return !claimed[id]
	}

	items := make([]*pushItem, 0, len(active))
	for _, acc := range active {
		it := &pushItem{acc: acc}
		if acc.IsLinked() {
			id, _ := normalizeUUID(*acc.RemnawaveUUID)
			it.remote = byID[id]
		}
		if it.remote == nil && acc.TelegramID != nil {
			if u, ok := byTg[*acc.TelegramID]; ok && free(u) {
				it.remote = u
				it.linked = true
			}
		}
		// пользователь мог быть создан прошлым прогоном, который не сохранил связь
		if it.remote == nil {
			if u, ok := byName[pushUsername(&acc)]; ok && free(u) {
				it.remote = u
				it.linked = true
			}
		}
		if it.linked {
			id, _ := normalizeUUID(it.remote.UUID)
			claimed[id] = true
		}
		items = append(items, it)
	}

	outcomes := batch.Run(ctx, items, e.batch, e.pushAccount)
	for _, o := range outcomes {
		it := o.Item
		if !o.OK() {
			slog.Error("Failed to push account to panel", "account_id", it.acc.ID, "error", o.Err)
			stats.addError(fmt.Errorf("push account %d: %w", it.acc.ID, o.Err))
			// пользователь в панели уже есть, даже если связь не сохранилась
			if it.remoteCreated {
				stats.RemoteCreated++
			}
			continue
		}
		if it.linked {
			stats.Updated++
		}
		if it.remoteCreated {
			stats.RemoteCreated++
		}
		if it.remoteUpdated {
			stats.RemoteUpdated++
		}
	}

	stats.FinishedAt = e.now()
	slog.Info("Push to panel completed",
		"remote_created", stats.RemoteCreated,
		"remote_updated", stats.RemoteUpdated,
		"linked", stats.Updated,
		"errors", stats.Errors)
	return stats, nil
}

func (e *Engine) pushAccount(ctx context.Context, it *pushItem) error {
	squads := it.acc.SquadIDs()

	if it.remote == nil {
		u, err := e.panel.CreateUser(ctx, e.createRequest(&it.acc, squads))
		if err != nil {
			return err
		}
		id, ok := normalizeUUID(u.UUID)
		if !ok {
			return fmt.Errorf("panel returned malformed uuid %q", u.UUID)
		}
		it.remoteCreated = true

		now := e.now()
		err = e.store.UpdateAccount(ctx, it.acc.ID, db.AccountPatch{
			RemnawaveUUID:   &id,
			ShortUUID:       &u.ShortUUID,
			SubscriptionURL: &u.SubscriptionURL,
			SyncedAt:        &now,
		})
		if err != nil {
			slog.Error("Panel user created but not linked locally",
				"account_id", it.acc.ID,
				"remnawave_uuid", id,
				"username", u.Username,
				"error", err)
			return fmt.Errorf("link created panel user %s: %w", id, err)
		}
		return nil
	}

	id, _ := normalizeUUID(it.remote.UUID)
	if it.linked {
		now := e.now()
		patch := db.AccountPatch{RemnawaveUUID: &id, SyncedAt: &now}
		if it.remote.ShortUUID != "" {
			patch.ShortUUID = &it.remote.ShortUUID
		}
		if it.remote.SubscriptionURL != "" {
			patch.SubscriptionURL = &it.remote.SubscriptionURL
		}
		if err := e.store.UpdateAccount(ctx, it.acc.ID, patch); err != nil {
			it.linked = false
			return err
		}
	}

	if sameSet(squads, it.remote.SquadIDs()) {
		return nil
	}
	if err := e.panel.UpdateUserSquads(ctx, id, squads); err != nil {
		return err
	}
	it.remoteUpdated = true
	return nil
}

// pushUsername - имя, под которым аккаунт создаётся в панели
func pushUsername(acc *db.Account) string {
	if acc.Username == "" {
		return fmt.Sprintf("user_%d", acc.ID)
	}
	return acc.Username
}

func (e *Engine) createRequest(acc *db.Account, squads []string) *remnawave.CreateUserRequest {
	expireAt := e.now().Add(unlimitedExpiry).UTC()
	if acc.ExpiresAt != nil {
		expireAt = acc.ExpiresAt.UTC()
	}
	return &remnawave.CreateUserRequest{
		Username:             pushUsername(acc),
		Status:               remnawave.UserStatusActive,
		TrafficLimitBytes:    acc.TrafficLimitBytes,
		TrafficLimitStrategy: "NO_RESET",
		ExpireAt:             expireAt,
		TelegramID:           acc.TelegramID,
		Description:          fmt.Sprintf("restored from local account %d", acc.ID),
		ActiveInternalSquads: squads,
	}
}
