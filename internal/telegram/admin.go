package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"remna-bot/internal/db"
)

func (s *Service) handleAdmins(msg *tgbotapi.Message) {
	// Создаем меню управления админами
	keyboard := [][]tgbotapi.InlineKeyboardButton{
		{tgbotapi.NewInlineKeyboardButtonData("➕ Добавить админа", CallbackAdminAdd.String())},
		{tgbotapi.NewInlineKeyboardButtonData("📋 Список админов", CallbackAdminList.String())},
		{tgbotapi.NewInlineKeyboardButtonData("🗑 Отключить админа", CallbackAdminDisable.String())},
	}

	msgConfig := tgbotapi.NewMessage(msg.Chat.ID, "Управление администраторами:")
	msgConfig.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	s.send(msgConfig)
}

func (s *Service) handleAdminCallback(callback *tgbotapi.CallbackQuery) {
	data := callback.Data

	switch CallbackData(data) {
	case CallbackAdminList:
		s.showAdminList(callback)
		return
	case CallbackAdminAdd:
		s.showAddAdminForm(callback)
		return
	case CallbackAdminDisable:
		s.showDisableAdminList(callback)
		return
	}

	// Отключение админа по префиксу
	if strings.HasPrefix(data, CallbackDisableAdmin.String()) {
		userIDStr := strings.TrimPrefix(data, CallbackDisableAdmin.String())
		userID, err := strconv.ParseInt(userIDStr, 10, 64)
		if err != nil {
			s.answerCallback(callback.ID, "Неверный ID админа")
			return
		}

		if err := s.disableAdmin(userID); err != nil {
			s.answerCallback(callback.ID, fmt.Sprintf("Ошибка: %v", err))
			return
		}

		s.answerCallback(callback.ID, "✅ Админ отключен")
		s.editMessage(callback, "✅ Администратор отключен")
	}
}

func (s *Service) showAdminList(callback *tgbotapi.CallbackQuery) {
	var admins []db.Admin
	result := s.repo.DB().Where("disabled = false").Find(&admins)
	if result.Error != nil {
		s.answerCallback(callback.ID, "Ошибка получения списка")
		return
	}

	text := "👥 Список администраторов:\n\n"
	if len(admins) == 0 {
		text += "В базе нет администраторов, доступ есть только у SUPER_ADMIN_ID"
	}
	for _, admin := range admins {
		role := AdminRole(admin.Role)
		text += fmt.Sprintf("%s %s (%s)\n", role.Emoji(), s.adminLabel(admin.TgID), role.DisplayName())
	}

	s.editMessage(callback, text)
	s.answerCallback(callback.ID, "")
}

func (s *Service) showAddAdminForm(callback *tgbotapi.CallbackQuery) {
	s.editMessage(callback, addAdminUsage)
	s.answerCallback(callback.ID, "")
}

func (s *Service) showDisableAdminList(callback *tgbotapi.CallbackQuery) {
	var admins []db.Admin
	result := s.repo.DB().Where("disabled = false AND tg_id <> ?", callback.From.ID).Find(&admins)
	if result.Error != nil {
		s.answerCallback(callback.ID, "Ошибка получения списка")
		return
	}

	if len(admins) == 0 {
		s.answerCallback(callback.ID, "Нет админов для отключения")
		return
	}

	text := "🗑 Выберите администратора для отключения:\n\n"
	var keyboard [][]tgbotapi.InlineKeyboardButton

	for _, admin := range admins {
		role := AdminRole(admin.Role)
		label := s.adminLabel(admin.TgID)
		text += fmt.Sprintf("%s %s (%s)\n", role.Emoji(), label, role.DisplayName())

		btn := tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("🗑 %s", label),
			CallbackDisableAdmin.WithID(admin.TgID),
		)
		keyboard = append(keyboard, []tgbotapi.InlineKeyboardButton{btn})
	}

	editMsg := tgbotapi.NewEditMessageText(
		callback.Message.Chat.ID,
		callback.Message.MessageID,
		text,
	)
	editMsg.ReplyMarkup = &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: keyboard}
	s.send(editMsg)
	s.answerCallback(callback.ID, "")
}

// adminLabel - username из аккаунта с тем же Telegram ID, иначе сам ID
func (s *Service) adminLabel(tgID int64) string {
	var acc db.Account
	err := s.repo.DB().Where("telegram_id = ? AND username <> ''", tgID).First(&acc).Error
	if err != nil {
		return fmt.Sprintf("id %d", tgID)
	}
	return "@" + acc.Username
}

func (s *Service) disableAdmin(adminID int64) error {
	result := s.repo.DB().Model(&db.Admin{}).
		Where("tg_id = ?", adminID).
		Update("disabled", true)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("администратор не найден")
	}

	return nil
}

const addAdminUsage = `Использование: /add_admin <tg_id|@username> role

Доступные роли:
• super - суперадмин
• admin - администратор
• support - поддержка

Пример: /add_admin 123456789 admin`

func (s *Service) handleAddAdmin(msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 2 {
		s.reply(msg.Chat.ID, addAdminUsage)
		return
	}

	role := AdminRole(args[1])

	// Проверяем валидность роли
	if !role.IsValid() {
		s.reply(msg.Chat.ID, "Неверная роль. Доступные: super, admin, support")
		return
	}

	tgID, err := s.resolveTelegramID(args[0])
	if err != nil {
		s.reply(msg.Chat.ID, fmt.Sprintf("Пользователь %s не найден.\n\nУкажите Telegram ID или username аккаунта с привязанным Telegram.", args[0]))
		return
	}

	created, err := s.addAdmin(tgID, role)
	if err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("Failed to save admin: %v", err))
		return
	}

	verb := "назначен"
	if !created {
		verb = "переназначен"
	}
	s.reply(msg.Chat.ID, fmt.Sprintf("✅ Пользователь %s %s как %s", s.adminLabel(tgID), verb, role.DisplayName()))
}

func (s *Service) resolveTelegramID(arg string) (int64, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return id, nil
	}

	var acc db.Account
	err := s.repo.DB().
		Where("username = ? AND telegram_id IS NOT NULL", strings.TrimPrefix(arg, "@")).
		First(&acc).Error
	if err != nil {
		return 0, err
	}
	return *acc.TelegramID, nil
}

// addAdmin создаёт админа или включает отключенного с новой ролью
func (s *Service) addAdmin(tgID int64, role AdminRole) (bool, error) {
	var existing db.Admin
	err := s.repo.DB().Where("tg_id = ?", tgID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, s.repo.DB().Create(&db.Admin{TgID: tgID, Role: role.String()}).Error
	}
	if err != nil {
		return false, err
	}

	return false, s.repo.DB().Model(&existing).Updates(map[string]interface{}{
		"role":     role.String(),
		"disabled": false,
	}).Error
}
