package scheduler

import (
	"fmt"
	"strings"
	"time"

	"remna-bot/internal/db"
	"remna-bot/internal/reconcile"
)

// NewRunRecord переводит итог прогона в запись истории
func NewRunRecord(kind, reason string, started time.Time, stats *reconcile.RunStatistics, err error) *db.SyncRun {
	run := &db.SyncRun{
		Kind:       kind,
		Reason:     reason,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Success:    err == nil,
	}
	if err != nil {
		msg := err.Error()
		run.Error = &msg
	}
	if stats != nil {
		run.FinishedAt = stats.FinishedAt
		run.Mode = string(stats.Mode)
		run.Created = stats.Created
		run.Updated = stats.Updated
		run.Deactivated = stats.Deactivated
		run.Purged = stats.Purged
		run.Errors = stats.Errors
		run.RemoteCreated = stats.RemoteCreated
		run.RemoteUpdated = stats.RemoteUpdated
		run.GroupsCreated = stats.GroupsCreated
		run.GroupsUpdated = stats.GroupsUpdated
		run.GroupsRemoved = stats.GroupsRemoved
	}
	return run
}

func statsFromRecord(run db.SyncRun) *reconcile.RunStatistics {
	if !run.Success {
		return nil
	}
	mode := reconcile.Mode(run.Mode)
	if mode == "" {
		mode = reconcile.ModeFull
	}
	return &reconcile.RunStatistics{
		Mode:          mode,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
		Created:       run.Created,
		Updated:       run.Updated,
		Deactivated:   run.Deactivated,
		Purged:        run.Purged,
		Errors:        run.Errors,
		RemoteCreated: run.RemoteCreated,
		RemoteUpdated: run.RemoteUpdated,
		GroupsCreated: run.GroupsCreated,
		GroupsUpdated: run.GroupsUpdated,
		GroupsRemoved: run.GroupsRemoved,
	}
}

func lastRunFromRecord(run db.SyncRun) *LastRun {
	last := &LastRun{
		Reason:     Reason(run.Reason),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Success:    run.Success,
		Stats:      statsFromRecord(run),
	}
	if run.Error != nil {
		last.Error = *run.Error
	}
	return last
}

// FormatRunReport - текст отчёта о прогоне для администратора
func FormatRunReport(last *LastRun) string {
	var b strings.Builder
	if last.Success {
		b.WriteString("🔄 Синхронизация с RemnaWave завершена\n")
	} else {
		b.WriteString("❌ Синхронизация с RemnaWave не выполнена\n")
	}
	fmt.Fprintf(&b, "🕒 %s, %s\n", last.StartedAt.Format("02.01.2006 15:04"), last.FinishedAt.Sub(last.StartedAt).Round(time.Second))

	if last.Stats != nil {
		s := last.Stats
		fmt.Fprintf(&b, "➕ Создано: %d\n✏️ Обновлено: %d\n⛔ Отключено: %d\n⚠️ Ошибок: %d\n",
			s.Created, s.Updated, s.Deactivated, s.Errors)
		if s.GroupsCreated+s.GroupsUpdated+s.GroupsRemoved+s.GroupErrors > 0 {
			fmt.Fprintf(&b, "📦 Сквады: +%d ~%d -%d", s.GroupsCreated, s.GroupsUpdated, s.GroupsRemoved)
			if s.GroupErrors > 0 {
				fmt.Fprintf(&b, ", ошибок %d", s.GroupErrors)
			}
			b.WriteString("\n")
		}
		for _, e := range s.ErrorSamples {
			fmt.Fprintf(&b, "• %s\n", e)
		}
	}
	if last.Error != "" {
		fmt.Fprintf(&b, "Причина: %s\n", last.Error)
	}
	return strings.TrimRight(b.String(), "\n")
}
