package reconcile

import (
	"fmt"
	"slices"
	"time"

	"remna-bot/internal/db"
	"remna-bot/internal/gates/remnawave"
)

type createItem struct {
	id     string
	remote remnawave.User
	// link - существующий несвязанный аккаунт с тем же Telegram ID
	link *db.Account

	created bool
	linked  bool
}

type updateItem struct {
	local  db.Account
	remote remnawave.User

	changed bool
}

type plan struct {
	create     []*createItem
	update     []*updateItem
	deactivate []db.Account
}

// buildPlan раскладывает записи на три множества по UUID панели.
// Некорректные и повторяющиеся UUID панели считаются ошибками и пропускаются.
func buildPlan(remote []remnawave.User, local, unlinked []db.Account, stats *RunStatistics) plan {
	localByID := make(map[string]db.Account, len(local))
	for _, acc := range local {
		id, _ := normalizeUUID(*acc.RemnawaveUUID)
		localByID[id] = acc
	}

	unlinkedByTg := make(map[int64]*db.Account)
	for i := range unlinked {
		acc := &unlinked[i]
		if acc.TelegramID == nil {
			continue
		}
		if _, ok := unlinkedByTg[*acc.TelegramID]; !ok {
			unlinkedByTg[*acc.TelegramID] = acc
		}
	}

	var p plan
	seen := make(map[string]bool, len(remote))
	for _, u := range remote {
		id, ok := normalizeUUID(u.UUID)
		if !ok {
			stats.addError(fmt.Errorf("remote user %q: malformed uuid %q", u.Username, u.UUID))
			continue
		}
		if seen[id] {
			stats.addError(fmt.Errorf("remote user %q: duplicate uuid %s", u.Username, id))
			continue
		}
		seen[id] = true

		if acc, ok := localByID[id]; ok {
			p.update = append(p.update, &updateItem{local: acc, remote: u})
			continue
		}

		item := &createItem{id: id, remote: u}
		if u.TelegramID != nil {
			if acc, ok := unlinkedByTg[*u.TelegramID]; ok {
				item.link = acc
				delete(unlinkedByTg, *u.TelegramID)
			}
		}
		p.create = append(p.create, item)
	}

	for id, acc := range localByID {
		if seen[id] || acc.Status == db.StatusDisabled {
			continue
		}
		p.deactivate = append(p.deactivate, acc)
	}
	slices.SortFunc(p.deactivate, func(a, b db.Account) int { return int(a.ID) - int(b.ID) })

	return p
}

func localStatus(s remnawave.UserStatus) (db.AccountStatus, bool) {
	switch {
	case s.IsEnabled():
		return db.StatusActive, true
	case s == remnawave.UserStatusDisabled:
		return db.StatusDisabled, true
	case s == remnawave.UserStatusExpired:
		return db.StatusExpired, true
	}
	return "", false
}

// mergePatch собирает изменения из записи панели. Баланс и история не входят в патч.
// Второе значение false, если аккаунт уже совпадает с панелью.
func mergePatch(acc *db.Account, u *remnawave.User) (db.AccountPatch, bool) {
	var patch db.AccountPatch
	changed := false

	if status, ok := localStatus(u.Status); ok && status != acc.Status {
		patch.Status = &status
		changed = true
	}
	if u.UsedTrafficBytes != acc.TrafficUsedBytes {
		v := u.UsedTrafficBytes
		patch.TrafficUsedBytes = &v
		changed = true
	}
	if u.TrafficLimitBytes != acc.TrafficLimitBytes {
		v := u.TrafficLimitBytes
		patch.TrafficLimitBytes = &v
		changed = true
	}
	if !u.ExpireAt.IsZero() && !sameInstant(acc.ExpiresAt, u.ExpireAt) {
		v := u.ExpireAt.UTC()
		patch.ExpiresAt = &v
		changed = true
	}
	if u.OnlineAt != nil && !sameInstant(acc.LastSeenAt, *u.OnlineAt) {
		v := u.OnlineAt.UTC()
		patch.LastSeenAt = &v
		changed = true
	}
	if u.ShortUUID != "" && u.ShortUUID != acc.ShortUUID {
		v := u.ShortUUID
		patch.ShortUUID = &v
		changed = true
	}
	if u.SubscriptionURL != "" && u.SubscriptionURL != acc.SubscriptionURL {
		v := u.SubscriptionURL
		patch.SubscriptionURL = &v
		changed = true
	}
	if remoteSquads := u.SquadIDs(); !sameSet(acc.SquadIDs(), remoteSquads) {
		patch.Squads = &remoteSquads
		changed = true
	}

	return patch, changed
}

// accountFromRemote - новый локальный аккаунт по записи панели
func accountFromRemote(id string, u *remnawave.User, now time.Time) *db.Account {
	status, ok := localStatus(u.Status)
	if !ok {
		status = db.StatusActive
	}
	acc := &db.Account{
		TelegramID:        u.TelegramID,
		Username:          u.Username,
		RemnawaveUUID:     &id,
		ShortUUID:         u.ShortUUID,
		SubscriptionURL:   u.SubscriptionURL,
		Status:            status,
		TrafficUsedBytes:  u.UsedTrafficBytes,
		TrafficLimitBytes: u.TrafficLimitBytes,
		SyncedAt:          &now,
	}
	if !u.ExpireAt.IsZero() {
		t := u.ExpireAt.UTC()
		acc.ExpiresAt = &t
	}
	if u.OnlineAt != nil {
		t := u.OnlineAt.UTC()
		acc.LastSeenAt = &t
	}
	for _, s := range u.SquadIDs() {
		acc.Squads = append(acc.Squads, db.AccountSquad{SquadUUID: s})
	}
	return acc
}

// сравнение до секунды: драйверы по-разному хранят доли секунды
func sameInstant(local *time.Time, remote time.Time) bool {
	if local == nil {
		return false
	}
	return local.Truncate(time.Second).Equal(remote.Truncate(time.Second))
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
