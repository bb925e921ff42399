package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"remna-bot/internal/config"
	"remna-bot/internal/db"
	"remna-bot/internal/migration"
	"remna-bot/internal/reconcile"
	"remna-bot/internal/scheduler"
)

// лимит длины сообщения Telegram с запасом
const maxMessageLen = 4000

type Service struct {
	bot      *tgbotapi.BotAPI
	repo     *db.Repository
	cfg      *config.Config
	engine   *reconcile.Engine
	migrator *migration.Migrator
	sched    *scheduler.Scheduler

	ctx  context.Context
	jobs sync.WaitGroup

	mu      sync.Mutex
	pending map[int64]*migration.Plan
}

func New(cfg *config.Config, repo *db.Repository, engine *reconcile.Engine, migrator *migration.Migrator) (*Service, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	// Удаляем webhook чтобы использовать long-polling
	_, err = bot.Request(tgbotapi.DeleteWebhookConfig{})
	if err != nil {
		slog.Warn("Не удалось удалить webhook", "error", err)
	} else {
		slog.Info("Webhook удален, переключились на long-polling")
	}

	slog.Info("Авторизован как телеграм бот", "username", bot.Self.UserName)

	service := newService(cfg, repo, engine, migrator)
	service.bot = bot

	// Устанавливаем меню команд
	err = service.setCommands()
	if err != nil {
		slog.Warn("Не удалось установить меню команд", "error", err)
	}

	return service, nil
}

func newService(cfg *config.Config, repo *db.Repository, engine *reconcile.Engine, migrator *migration.Migrator) *Service {
	return &Service{
		repo:     repo,
		cfg:      cfg,
		engine:   engine,
		migrator: migrator,
		ctx:      context.Background(),
		pending:  make(map[int64]*migration.Plan),
	}
}

// SetScheduler подключает планировщик. Он создаётся после сервиса, потому что шлёт отчёты через него
func (s *Service) SetScheduler(sched *scheduler.Scheduler) {
	s.sched = sched
}

// Notify реализует scheduler.Notifier
func (s *Service) Notify(message string) {
	s.sendAdminReport(message)
}

func (s *Service) Start(ctx context.Context) error {
	s.ctx = ctx

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := s.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			s.bot.StopReceivingUpdates()
			s.jobs.Wait()
			return ctx.Err()
		case upd := <-updates:
			s.handleUpdate(upd)
		}
	}
}

func (s *Service) handleUpdate(upd tgbotapi.Update) {
	if upd.Message != nil {
		if upd.Message.IsCommand() {
			s.handleCommand(upd.Message)
		}
		return
	}

	if upd.CallbackQuery != nil {
		s.handleCallbackQuery(upd.CallbackQuery)
		return
	}
}

func (s *Service) handleCallbackQuery(callback *tgbotapi.CallbackQuery) {
	data := callback.Data

	if !s.isAdmin(callback.From.ID) {
		s.answerCallback(callback.ID, "У вас нет прав")
		return
	}

	if strings.HasPrefix(data, CallbackSyncMode.String()) {
		s.handleSyncModeCallback(callback)
		return
	}

	if strings.HasPrefix(data, CallbackAccountInfo.String()) {
		id, err := strconv.ParseUint(strings.TrimPrefix(data, CallbackAccountInfo.String()), 10, 32)
		if err != nil {
			s.answerCallback(callback.ID, "Неверный ID аккаунта")
			return
		}
		s.sendAccountInfo(callback.Message.Chat.ID, uint(id))
		s.answerCallback(callback.ID, "")
		return
	}

	if !s.isSuperAdmin(callback.From.ID) {
		s.answerCallback(callback.ID, "Действие доступно только суперадмину")
		return
	}

	switch {
	case data == CallbackCleanupConfirm.String() || data == CallbackCleanupCancel.String():
		s.handleCleanupCallback(callback)
	case data == CallbackMigrateConfirm.String() || data == CallbackMigrateCancel.String():
		s.handleMigrateCallback(callback)
	case data == CallbackAdminList.String() ||
		data == CallbackAdminAdd.String() ||
		data == CallbackAdminDisable.String() ||
		strings.HasPrefix(data, CallbackDisableAdmin.String()):
		s.handleAdminCallback(callback)
	default:
		s.answerCallback(callback.ID, "Неизвестное действие")
	}
}

func (s *Service) handleCommand(msg *tgbotapi.Message) {
	cmd := Command(msg.Command())

	// Проверяем валидность команды
	if !cmd.IsValid() {
		s.handleUnknown(msg)
		return
	}

	// Проверяем права для админских команд
	if cmd.IsAdminOnly() {
		role, ok := s.adminRole(msg.From.ID)
		if !ok || !role.Allows(cmd) {
			s.handleError(msg.Chat.ID, ErrPermission("command "+cmd.String()+" for "+strconv.FormatInt(msg.From.ID, 10)))
			return
		}
	}

	switch cmd {
	case CmdStart:
		s.handleStart(msg)
	case CmdHelp:
		s.handleHelp(msg)
	case CmdSync:
		s.handleSync(msg)
	case CmdSyncStatus:
		s.handleSyncStatus(msg)
	case CmdAutoSync:
		s.handleAutoSync(msg)
	case CmdSyncSchedule:
		s.handleSyncSchedule(msg)
	case CmdSyncToPanel:
		s.handleSyncToPanel(msg)
	case CmdCleanupOrphans:
		s.handleCleanupOrphans(msg)
	case CmdSquads:
		s.handleSquads(msg)
	case CmdSquadMigrate:
		s.handleSquadMigrate(msg)
	case CmdAccount:
		s.handleAccount(msg)
	case CmdAdmins:
		s.handleAdmins(msg)
	case CmdAddAdmin:
		s.handleAddAdmin(msg)
	}
}

func (s *Service) handleStart(msg *tgbotapi.Message) {
	if !s.isAdmin(msg.From.ID) {
		s.reply(msg.Chat.ID, "Этот бот управляет синхронизацией с панелью RemnaWave и доступен только администраторам.")
		return
	}

	text := `Панель синхронизации RemnaWave 🔄

/sync_status - состояние синхронизации
/help - справка`
	s.reply(msg.Chat.ID, text)
}

func (s *Service) handleHelp(msg *tgbotapi.Message) {
	role, ok := s.adminRole(msg.From.ID)
	if !ok {
		s.reply(msg.Chat.ID, "Команды доступны только администраторам.")
		return
	}

	text := `🔄 Синхронизация с RemnaWave

🎧 Просмотр:
/sync_status - состояние и последний прогон
/squads - сквады и число активных аккаунтов
/account <tg_id|uuid|username> - информация об аккаунте`

	if role.CanRunSync() {
		text += `

⚡ Управление:
/sync [full|create_only|update_only] - запустить синхронизацию
/autosync on|off [now] - автосинхронизация
/sync_schedule 03:00 15:30 - расписание автосинхронизации`
	}

	if role.CanManageAdmins() {
		text += `

👑 Команды суперадмина:
/sync_to_panel - выгрузить локальные аккаунты в панель
/cleanup_orphans - удалить аккаунты, которых нет в панели
/squad_migrate <из> <в> - перенести аккаунты между сквадами
/admins - управление админами
/add_admin <tg_id> role - добавить админа`
	}

	s.reply(msg.Chat.ID, text)
}

func (s *Service) handleUnknown(msg *tgbotapi.Message) {
	s.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
}

// runAsync выполняет долгую операцию вне цикла обновлений и присылает результат в чат.
// Остановка сервиса не прерывает операцию: Start дожидается её завершения
func (s *Service) runAsync(chatID int64, startText string, fn func(ctx context.Context) (string, error)) {
	s.reply(chatID, startText)

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()

		text, err := fn(context.WithoutCancel(s.ctx))
		if err != nil {
			s.handleError(chatID, err)
			return
		}
		s.reply(chatID, text)
	}()
}

func (s *Service) reply(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, truncate(text, maxMessageLen))
	return s.send(msg)
}

func (s *Service) send(c tgbotapi.Chattable) error {
	if s.bot == nil {
		return nil
	}
	_, err := s.bot.Send(c)
	if err != nil {
		slog.Warn("Не удалось отправить сообщение", "error", err)
	}
	return err
}

// adminRole возвращает роль пользователя. Суперадмин из конфигурации не хранится в базе
func (s *Service) adminRole(userID int64) (AdminRole, bool) {
	if superAdminID, err := strconv.ParseInt(s.cfg.SuperAdminID, 10, 64); err == nil && superAdminID == userID {
		return RoleSuper, true
	}

	var admin db.Admin
	result := s.repo.DB().Where("tg_id = ? AND disabled = false", userID).First(&admin)
	if result.Error != nil {
		return "", false
	}
	return AdminRole(admin.Role), true
}

func (s *Service) isAdmin(userID int64) bool {
	_, ok := s.adminRole(userID)
	return ok
}

func (s *Service) isSuperAdmin(userID int64) bool {
	role, ok := s.adminRole(userID)
	return ok && role.CanManageAdmins()
}

// reportRecipients - суперадмин из конфигурации и активные суперадмины из базы
func (s *Service) reportRecipients() []int64 {
	var ids []int64
	if id, err := strconv.ParseInt(s.cfg.SuperAdminID, 10, 64); err == nil {
		ids = append(ids, id)
	}

	var admins []db.Admin
	if err := s.repo.DB().Where("role = ? AND disabled = false", RoleSuper.String()).Find(&admins).Error; err != nil {
		slog.Warn("Не удалось получить список суперадминов", "error", err)
		return ids
	}
	for _, a := range admins {
		if len(ids) == 0 || ids[0] != a.TgID {
			ids = append(ids, a.TgID)
		}
	}
	return ids
}

func (s *Service) sendAdminReport(text string) {
	for _, id := range s.reportRecipients() {
		s.reply(id, text)
	}
}

func (s *Service) answerCallback(callbackID, text string) {
	if s.bot == nil {
		return
	}
	callback := tgbotapi.NewCallback(callbackID, text)
	s.bot.Request(callback)
}

func (s *Service) editMessage(callback *tgbotapi.CallbackQuery, text string) {
	editMsg := tgbotapi.NewEditMessageText(
		callback.Message.Chat.ID,
		callback.Message.MessageID,
		truncate(text, maxMessageLen),
	)
	s.send(editMsg)
}

func (s *Service) Bot() *tgbotapi.BotAPI {
	return s.bot
}

func (s *Service) setCommands() error {
	commands := []tgbotapi.BotCommand{
		{Command: "sync_status", Description: "📊 Состояние синхронизации"},
		{Command: "sync", Description: "🔄 Запустить синхронизацию"},
		{Command: "autosync", Description: "⏰ Автосинхронизация"},
		{Command: "sync_schedule", Description: "🕒 Расписание"},
		{Command: "squads", Description: "📦 Сквады"},
		{Command: "account", Description: "👤 Информация об аккаунте"},
		{Command: "help", Description: "❓ Справка"},
	}

	config := tgbotapi.NewSetMyCommands(commands...)
	_, err := s.bot.Request(config)
	return err
}

func truncate(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit-1]) + "…"
}
