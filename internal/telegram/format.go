package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"remna-bot/internal/db"
	"remna-bot/internal/migration"
	"remna-bot/internal/reconcile"
	"remna-bot/internal/scheduler"
)

const (
	dateLayout      = "02.01.2006 15:04"
	maxPreviewLines = 10
)

// formatMoney - баланс хранится в копейках
func formatMoney(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2) + " ₽"
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil || t.IsZero() {
		return "—"
	}
	return t.In(loc).Format(dateLayout)
}

func formatSyncReport(stats *reconcile.RunStatistics) string {
	report := scheduler.FormatRunReport(&scheduler.LastRun{
		Reason:     scheduler.ReasonManual,
		StartedAt:  stats.StartedAt,
		FinishedAt: stats.FinishedAt,
		Success:    true,
		Stats:      stats,
	})
	return report + "\nРежим: " + modeTitle(stats.Mode)
}

func formatPushReport(stats *reconcile.RunStatistics) string {
	var b strings.Builder
	b.WriteString("📤 Выгрузка в панель завершена\n")
	fmt.Fprintf(&b, "➕ Создано в панели: %d\n🔗 Связано по Telegram ID: %d\n📦 Обновлены сквады: %d\n⚠️ Ошибок: %d",
		stats.RemoteCreated, stats.Updated, stats.RemoteUpdated, stats.Errors)
	for _, e := range stats.ErrorSamples {
		fmt.Fprintf(&b, "\n• %s", e)
	}
	return b.String()
}

func formatCleanupReport(stats *reconcile.RunStatistics) string {
	text := fmt.Sprintf("🧹 Очистка завершена\n🗑 Очищено аккаунтов: %d\n⚠️ Ошибок: %d", stats.Purged, stats.Errors)
	for _, e := range stats.ErrorSamples {
		text += "\n• " + e
	}
	return text
}

// formatCleanupPreview описывает, что потеряется при очистке
func formatCleanupPreview(orphans []db.Account, balance int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🧹 Аккаунтов, которых нет в панели: %d\n💰 Суммарный баланс: %s\n\n", len(orphans), formatMoney(balance))
	for i, acc := range orphans {
		if i == maxPreviewLines {
			fmt.Fprintf(&b, "...и еще %d\n", len(orphans)-maxPreviewLines)
			break
		}
		fmt.Fprintf(&b, "• #%d %s, %s\n", acc.ID, displayName(&acc), formatMoney(acc.Balance))
	}
	b.WriteString("\n⚠️ У этих аккаунтов будут удалены транзакции, реферальные начисления, промокоды и сквады, баланс обнулится. Отменить это нельзя.")
	return b.String()
}

func formatStatus(st scheduler.ScheduleState, loc *time.Location) string {
	var b strings.Builder
	if st.Enabled {
		b.WriteString("📊 Автосинхронизация: ✅ включена\n")
	} else {
		b.WriteString("📊 Автосинхронизация: ⏸ выключена\n")
	}
	times := "не задано"
	if len(st.Times) > 0 {
		times = strings.Join(st.Times, ", ")
	}
	fmt.Fprintf(&b, "🕒 Расписание: %s (%s)\n", times, loc.String())
	if st.NextRunAt != nil {
		fmt.Fprintf(&b, "⏭ Следующий запуск: %s\n", formatTime(st.NextRunAt, loc))
	}
	if st.IsRunning {
		b.WriteString("▶️ Синхронизация выполняется\n")
	}

	if st.LastRun == nil {
		b.WriteString("\nСинхронизация ещё не запускалась")
		return b.String()
	}
	b.WriteString("\nПоследний прогон:\n")
	b.WriteString(scheduler.FormatRunReport(st.LastRun))
	if st.PreviousStats != nil {
		fmt.Fprintf(&b, "\n\nПредыдущий: %s", st.PreviousStats.Summary())
	}
	return b.String()
}

func formatMigrationPlan(plan *migration.Plan, source, target *db.Squad) string {
	return fmt.Sprintf("🔀 Перенос аккаунтов\n\nИз: %s\nВ: %s\nАктивных аккаунтов: %d\n\nПодтвердите перенос.",
		squadTitle(plan.Source, source), squadTitle(plan.Target, target), plan.Affected)
}

func formatMigrationResult(res *migration.Result) string {
	text := fmt.Sprintf("✅ Перенос завершен\n\nВсего: %d\nПеренесено локально: %d\nОбновлено в панели: %d\nОшибок панели: %d",
		res.Total, res.Updated, res.PanelUpdated, res.PanelFailed)
	if res.LocalFailed > 0 {
		text += fmt.Sprintf("\nНе перенесено: %d", res.LocalFailed)
	}
	return text
}

func formatAccount(acc *db.Account, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s (#%d)\n", displayName(acc), acc.ID)
	if acc.TelegramID != nil {
		fmt.Fprintf(&b, "Telegram ID: %d\n", *acc.TelegramID)
	}
	if acc.IsLinked() {
		fmt.Fprintf(&b, "UUID: %s\n", *acc.RemnawaveUUID)
	} else {
		b.WriteString("UUID: не связан с панелью\n")
	}
	fmt.Fprintf(&b, "Статус: %s\n", statusTitle(acc.Status))
	fmt.Fprintf(&b, "💰 Баланс: %s\n", formatMoney(acc.Balance))

	limit := "безлимит"
	if acc.TrafficLimitBytes > 0 {
		limit = formatBytes(acc.TrafficLimitBytes)
	}
	fmt.Fprintf(&b, "📶 Трафик: %s / %s\n", formatBytes(acc.TrafficUsedBytes), limit)
	fmt.Fprintf(&b, "📅 Истекает: %s\n", formatTime(acc.ExpiresAt, loc))
	fmt.Fprintf(&b, "👁 Был онлайн: %s\n", formatTime(acc.LastSeenAt, loc))
	fmt.Fprintf(&b, "🔄 Синхронизирован: %s\n", formatTime(acc.SyncedAt, loc))

	if squads := acc.SquadIDs(); len(squads) > 0 {
		fmt.Fprintf(&b, "📦 Сквады: %s\n", strings.Join(squads, ", "))
	}
	if acc.SubscriptionURL != "" {
		fmt.Fprintf(&b, "🔗 %s", acc.SubscriptionURL)
	}
	return strings.TrimRight(b.String(), "\n")
}

func displayName(acc *db.Account) string {
	if acc.Username != "" {
		return "@" + acc.Username
	}
	return "без имени"
}

func squadTitle(id string, squad *db.Squad) string {
	if squad == nil {
		return id + " (нет в каталоге)"
	}
	return fmt.Sprintf("%s (%s)", squad.Name, id)
}

func statusTitle(st db.AccountStatus) string {
	switch st {
	case db.StatusActive:
		return "✅ активен"
	case db.StatusDisabled:
		return "⛔ отключен"
	case db.StatusExpired:
		return "⌛ истек"
	}
	return string(st)
}
