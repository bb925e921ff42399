package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"remna-bot/internal/migration"
	"remna-bot/internal/reconcile"
	"remna-bot/internal/scheduler"
)

const previewTimeout = 30 * time.Second

func (s *Service) handleSync(msg *tgbotapi.Message) {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		var keyboard [][]tgbotapi.InlineKeyboardButton
		for _, m := range []reconcile.Mode{reconcile.ModeFull, reconcile.ModeCreateOnly, reconcile.ModeUpdateOnly} {
			btn := tgbotapi.NewInlineKeyboardButtonData(modeTitle(m), CallbackSyncMode.WithID(m))
			keyboard = append(keyboard, []tgbotapi.InlineKeyboardButton{btn})
		}

		msgConfig := tgbotapi.NewMessage(msg.Chat.ID, "Выберите режим синхронизации:")
		msgConfig.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(keyboard...)
		s.send(msgConfig)
		return
	}

	mode, ok := reconcile.ParseMode(arg)
	if !ok {
		s.reply(msg.Chat.ID, "Неизвестный режим. Доступные: full, create_only, update_only")
		return
	}
	s.startSync(msg.Chat.ID, mode)
}

func (s *Service) handleSyncModeCallback(callback *tgbotapi.CallbackQuery) {
	if role, _ := s.adminRole(callback.From.ID); !role.CanRunSync() {
		s.answerCallback(callback.ID, "У вас нет прав")
		return
	}

	mode, ok := reconcile.ParseMode(strings.TrimPrefix(callback.Data, CallbackSyncMode.String()))
	if !ok {
		s.answerCallback(callback.ID, "Неверный режим")
		return
	}

	s.answerCallback(callback.ID, "")
	s.editMessage(callback, "Режим: "+modeTitle(mode))
	s.startSync(callback.Message.Chat.ID, mode)
}

func (s *Service) startSync(chatID int64, mode reconcile.Mode) {
	if s.isBusy() {
		s.handleError(chatID, ErrSyncBusyf("manual %s run rejected", mode))
		return
	}

	s.runAsync(chatID, "🔄 Синхронизация запущена...", func(ctx context.Context) (string, error) {
		return s.runSync(ctx, scheduler.ReasonManual, mode)
	})
}

// runSync идёт через планировщик, чтобы ручной прогон попал в его состояние и историю
func (s *Service) runSync(ctx context.Context, reason scheduler.Reason, mode reconcile.Mode) (string, error) {
	if s.sched == nil {
		started := time.Now()
		stats, err := s.engine.RunReconciliation(ctx, mode)
		s.recordRun(ctx, scheduler.RunKindSync, reason, started, stats, err)
		if err != nil {
			return "", err
		}
		return formatSyncReport(stats), nil
	}

	res := s.sched.RunMode(ctx, reason, mode)
	if !res.Started {
		return "", ErrSyncBusyf("%s run skipped", mode)
	}
	if res.Err != nil {
		return "", res.Err
	}
	return formatSyncReport(res.Stats), nil
}

func (s *Service) isBusy() bool {
	if s.sched != nil {
		return s.sched.Status().IsRunning
	}
	return s.engine.IsRunning()
}

func (s *Service) recordRun(ctx context.Context, kind string, reason scheduler.Reason, started time.Time, stats *reconcile.RunStatistics, err error) {
	record := scheduler.NewRunRecord(kind, string(reason), started, stats, err)
	if recErr := s.repo.RecordRun(context.WithoutCancel(ctx), record); recErr != nil {
		slog.Error("Failed to record run", "kind", kind, "error", recErr)
	}
}

func (s *Service) handleSyncStatus(msg *tgbotapi.Message) {
	if s.sched == nil {
		s.reply(msg.Chat.ID, "Планировщик не запущен")
		return
	}
	s.reply(msg.Chat.ID, formatStatus(s.sched.Status(), s.cfg.Location()))
}

func (s *Service) handleAutoSync(msg *tgbotapi.Message) {
	if s.sched == nil {
		s.reply(msg.Chat.ID, "Планировщик не запущен")
		return
	}

	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		s.reply(msg.Chat.ID, `Использование: /autosync on|off [now]

now - сразу запустить синхронизацию после включения
Пример: /autosync on now`)
		return
	}

	enabled, ok := parseToggle(args[0])
	if !ok {
		s.handleError(msg.Chat.ID, ErrInvalidInputf("autosync argument %q", args[0]))
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, previewTimeout)
	defer cancel()
	if err := s.sched.SetEnabled(ctx, enabled); err != nil {
		s.handleError(msg.Chat.ID, err)
		return
	}

	if !enabled {
		s.reply(msg.Chat.ID, "⏸ Автосинхронизация выключена")
		return
	}

	text := "✅ Автосинхронизация включена"
	if next := s.sched.Status().NextRunAt; next != nil {
		text += "\n⏭ Следующий запуск: " + formatTime(next, s.cfg.Location())
	}
	s.reply(msg.Chat.ID, text)

	if len(args) > 1 && args[1] == "now" {
		s.runAsync(msg.Chat.ID, "🔄 Запускаю синхронизацию...", func(ctx context.Context) (string, error) {
			return s.runSync(ctx, scheduler.ReasonImmediate, reconcile.ModeFull)
		})
	}
}

func (s *Service) handleSyncSchedule(msg *tgbotapi.Message) {
	if s.sched == nil {
		s.reply(msg.Chat.ID, "Планировщик не запущен")
		return
	}

	times := parseTimesArg(msg.CommandArguments())
	if len(times) == 0 {
		current := strings.Join(s.sched.Status().Times, ", ")
		if current == "" {
			current = "не задано"
		}
		s.reply(msg.Chat.ID, fmt.Sprintf(`🕒 Текущее расписание: %s

Использование: /sync_schedule 03:00 15:30
Время в формате ЧЧ:ММ, часовой пояс %s`, current, s.cfg.Location().String()))
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, previewTimeout)
	defer cancel()
	normalized, err := s.sched.SetSchedule(ctx, times)
	if err != nil {
		s.handleError(msg.Chat.ID, err)
		return
	}

	s.reply(msg.Chat.ID, "✅ Расписание сохранено: "+strings.Join(normalized, ", "))
}

func (s *Service) handleSyncToPanel(msg *tgbotapi.Message) {
	if s.isBusy() {
		s.handleError(msg.Chat.ID, ErrSyncBusyf("push rejected"))
		return
	}

	s.runAsync(msg.Chat.ID, "📤 Выгрузка аккаунтов в панель запущена...", func(ctx context.Context) (string, error) {
		started := time.Now()
		stats, err := s.engine.PushLocalToRemote(ctx)
		s.recordRun(ctx, scheduler.RunKindPush, scheduler.ReasonManual, started, stats, err)
		if err != nil {
			return "", err
		}
		return formatPushReport(stats), nil
	})
}

func (s *Service) handleCleanupOrphans(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(s.ctx, previewTimeout)
	defer cancel()

	orphans, err := s.engine.Orphans(ctx)
	if err != nil {
		s.handleError(msg.Chat.ID, err)
		return
	}
	if len(orphans) == 0 {
		s.reply(msg.Chat.ID, "✅ Все связанные аккаунты есть в панели, очищать нечего")
		return
	}

	ids := make([]uint, 0, len(orphans))
	for _, acc := range orphans {
		ids = append(ids, acc.ID)
	}
	balance, err := s.repo.BalanceTotal(ctx, ids)
	if err != nil {
		s.handleError(msg.Chat.ID, err)
		return
	}

	keyboard := [][]tgbotapi.InlineKeyboardButton{
		{tgbotapi.NewInlineKeyboardButtonData("🗑 Очистить", CallbackCleanupConfirm.String())},
		{tgbotapi.NewInlineKeyboardButtonData("Отмена", CallbackCleanupCancel.String())},
	}

	msgConfig := tgbotapi.NewMessage(msg.Chat.ID, truncate(formatCleanupPreview(orphans, balance), maxMessageLen))
	msgConfig.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	s.send(msgConfig)
}

func (s *Service) handleCleanupCallback(callback *tgbotapi.CallbackQuery) {
	if callback.Data == CallbackCleanupCancel.String() {
		s.answerCallback(callback.ID, "Отменено")
		s.editMessage(callback, "Очистка отменена")
		return
	}

	s.answerCallback(callback.ID, "")
	s.editMessage(callback, "🧹 Очистка подтверждена")
	slog.Warn("Orphan cleanup confirmed", "admin", callback.From.ID)

	s.runAsync(callback.Message.Chat.ID, "🧹 Очистка запущена...", func(ctx context.Context) (string, error) {
		started := time.Now()
		stats, err := s.engine.ForceCleanupOrphaned(ctx)
		s.recordRun(ctx, scheduler.RunKindCleanup, scheduler.ReasonManual, started, stats, err)
		if err != nil {
			return "", err
		}
		return formatCleanupReport(stats), nil
	})
}

func (s *Service) handleSquads(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(s.ctx, previewTimeout)
	defer cancel()

	squads, err := s.repo.ListSquads(ctx)
	if err != nil {
		s.handleError(msg.Chat.ID, err)
		return
	}
	if len(squads) == 0 {
		s.reply(msg.Chat.ID, "Каталог сквадов пуст. Он заполняется полной синхронизацией: /sync full")
		return
	}

	text := "📦 Сквады:\n\n"
	for _, sq := range squads {
		count, err := s.migrator.CountActiveAccountsForGroup(ctx, sq.UUID)
		if err != nil {
			s.handleError(msg.Chat.ID, err)
			return
		}
		text += fmt.Sprintf("🔹 %s\n%s\n👥 Активных: %d, в панели: %d\n\n", sq.Name, sq.UUID, count, sq.MembersCount)
	}
	s.reply(msg.Chat.ID, text)
}

func (s *Service) handleSquadMigrate(msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		s.reply(msg.Chat.ID, `Использование: /squad_migrate <uuid_из> <uuid_в>

Список сквадов: /squads`)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, previewTimeout)
	defer cancel()

	plan, err := s.migrator.Prepare(ctx, args[0], args[1])
	if err != nil {
		s.handleError(msg.Chat.ID, err)
		return
	}
	if plan.Affected == 0 {
		s.reply(msg.Chat.ID, "В исходном скваде нет активных аккаунтов, переносить нечего")
		return
	}

	source, _ := s.repo.GetSquad(ctx, plan.Source)
	target, _ := s.repo.GetSquad(ctx, plan.Target)

	s.mu.Lock()
	s.pending[msg.Chat.ID] = plan
	s.mu.Unlock()

	keyboard := [][]tgbotapi.InlineKeyboardButton{
		{tgbotapi.NewInlineKeyboardButtonData("✅ Перенести", CallbackMigrateConfirm.String())},
		{tgbotapi.NewInlineKeyboardButtonData("Отмена", CallbackMigrateCancel.String())},
	}

	msgConfig := tgbotapi.NewMessage(msg.Chat.ID, formatMigrationPlan(plan, source, target))
	msgConfig.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	s.send(msgConfig)
}

func (s *Service) handleMigrateCallback(callback *tgbotapi.CallbackQuery) {
	chatID := callback.Message.Chat.ID
	plan := s.takePending(chatID)

	if callback.Data == CallbackMigrateCancel.String() {
		s.answerCallback(callback.ID, "Отменено")
		s.editMessage(callback, "Перенос отменен")
		return
	}
	if plan == nil {
		s.answerCallback(callback.ID, "Запрос устарел")
		s.editMessage(callback, "Запрос на перенос устарел, повторите /squad_migrate")
		return
	}

	s.answerCallback(callback.ID, "")
	s.editMessage(callback, fmt.Sprintf("🔀 Перенос %s → %s подтвержден", plan.Source, plan.Target))
	slog.Info("Squad migration confirmed", "admin", callback.From.ID, "source", plan.Source, "target", plan.Target)

	s.runAsync(chatID, "🔀 Перенос запущен...", func(ctx context.Context) (string, error) {
		res, err := s.migrator.Migrate(ctx, plan.Source, plan.Target)
		if err != nil {
			return "", err
		}
		return formatMigrationResult(res), nil
	})
}

// takePending забирает запрос на перенос, чтобы повторное нажатие не запустило его дважды
func (s *Service) takePending(chatID int64) *migration.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan := s.pending[chatID]
	delete(s.pending, chatID)
	return plan
}

func (s *Service) handleAccount(msg *tgbotapi.Message) {
	query := strings.TrimSpace(msg.CommandArguments())
	if query == "" {
		s.reply(msg.Chat.ID, "Использование: /account <tg_id|uuid|username>\nПример: /account john_doe")
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, previewTimeout)
	defer cancel()

	accounts, err := s.repo.FindAccounts(ctx, query, 5)
	if err != nil {
		s.handleError(msg.Chat.ID, err)
		return
	}
	if len(accounts) == 0 {
		s.handleError(msg.Chat.ID, ErrAccountNotFoundf("query %q", query))
		return
	}

	if len(accounts) > 1 {
		text := "Найдено несколько аккаунтов:\n\n"
		var keyboard [][]tgbotapi.InlineKeyboardButton

		for i := range accounts {
			acc := &accounts[i]
			text += fmt.Sprintf("👤 %s (#%d)\n", displayName(acc), acc.ID)
			btn := tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("ℹ️ %s", displayName(acc)),
				CallbackAccountInfo.WithID(acc.ID),
			)
			keyboard = append(keyboard, []tgbotapi.InlineKeyboardButton{btn})
		}

		msgConfig := tgbotapi.NewMessage(msg.Chat.ID, text)
		msgConfig.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(keyboard...)
		s.send(msgConfig)
		return
	}

	s.reply(msg.Chat.ID, formatAccount(&accounts[0], s.cfg.Location()))
}

func (s *Service) sendAccountInfo(chatID int64, id uint) {
	ctx, cancel := context.WithTimeout(s.ctx, previewTimeout)
	defer cancel()

	acc, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		s.handleError(chatID, err)
		return
	}
	s.reply(chatID, formatAccount(acc, s.cfg.Location()))
}

func parseToggle(arg string) (bool, bool) {
	switch strings.ToLower(arg) {
	case "on", "1", "true", "вкл":
		return true, true
	case "off", "0", "false", "выкл":
		return false, true
	}
	return false, false
}

// parseTimesArg принимает времена через пробел или запятую
func parseTimesArg(arg string) []string {
	return strings.FieldsFunc(arg, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}
