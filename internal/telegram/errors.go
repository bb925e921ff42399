package telegram

import (
	"errors"
	"fmt"
	"log/slog"

	"remna-bot/internal/reconcile"
	"remna-bot/internal/syncerr"
)

// Error коды для различных типов ошибок
const (
	ErrInvalidInput     = "INVALID_INPUT"
	ErrDatabaseError    = "DATABASE_ERROR"
	ErrPanelError       = "PANEL_ERROR"
	ErrNotConfigured    = "NOT_CONFIGURED"
	ErrSyncBusy         = "SYNC_BUSY"
	ErrPermissionDenied = "PERMISSION_DENIED"
	ErrAccountNotFound  = "ACCOUNT_NOT_FOUND"
)

// BotError представляет ошибку бота с кодом и сообщением для пользователя
type BotError struct {
	Code        string
	Message     string
	UserMessage string
	Details     string
}

func (e *BotError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
}

// NewBotError создает новую ошибку бота
func NewBotError(code, message, userMessage, details string) *BotError {
	return &BotError{
		Code:        code,
		Message:     message,
		UserMessage: userMessage,
		Details:     details,
	}
}

// reportable - ошибки, о которых стоит сообщать суперадмину
func (e *BotError) reportable() bool {
	switch e.Code {
	case ErrInvalidInput, ErrSyncBusy, ErrPermissionDenied, ErrAccountNotFound:
		return false
	}
	return true
}

// asBotError переводит ошибки синхронизации в BotError
func asBotError(err error) *BotError {
	var botErr *BotError
	if errors.As(err, &botErr) {
		return botErr
	}

	var validationErr *syncerr.ValidationError
	var remoteErr *syncerr.RemoteError
	var localErr *syncerr.LocalError
	switch {
	case errors.As(err, &validationErr):
		return NewBotError(ErrInvalidInput, "Validation failed",
			"Неверные данные: "+validationErr.Reason, err.Error())
	case errors.Is(err, reconcile.ErrRunInProgress):
		return ErrSyncBusyf("%v", err)
	case syncerr.IsConfiguration(err):
		return NewBotError(ErrNotConfigured, "Remnawave panel is not configured",
			"Панель RemnaWave не настроена. Проверьте REMNAWAVE_URL и REMNAWAVE_TOKEN.", err.Error())
	case errors.As(err, &remoteErr):
		return ErrPanelf("%v", err)
	case errors.As(err, &localErr):
		return ErrDatabasef("%v", err)
	}
	return NewBotError("UNKNOWN_ERROR", "Unknown error occurred",
		"Произошла внутренняя ошибка. Попробуйте позже.", err.Error())
}

// handleError обрабатывает ошибки и отправляет соответствующие сообщения пользователю
func (s *Service) handleError(chatID int64, err error) {
	slog.Error("Bot error occurred", "error", err)

	botErr := asBotError(err)
	if botErr.reportable() {
		s.sendErrorReport(botErr)
	}

	s.reply(chatID, "❌ "+botErr.UserMessage)
}

// sendErrorReport отправляет отчет об ошибке суперадминам
func (s *Service) sendErrorReport(botErr *BotError) {
	report := fmt.Sprintf(`🚨 Ошибка в боте:

Код: %s
Сообщение: %s
Детали: %s

Пользователю показано: %s`,
		botErr.Code,
		botErr.Message,
		botErr.Details,
		botErr.UserMessage,
	)

	s.sendAdminReport(report)
}

// Вспомогательные функции для создания типичных ошибок

func ErrInvalidInputf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrInvalidInput,
		"Invalid input provided",
		"Неверный формат данных. Проверьте правильность ввода.",
		fmt.Sprintf(details, args...),
	)
}

func ErrDatabasef(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrDatabaseError,
		"Database operation failed",
		"Ошибка базы данных. Попробуйте позже.",
		fmt.Sprintf(details, args...),
	)
}

func ErrPanelf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrPanelError,
		"Remnawave operation failed",
		"Ошибка обращения к панели RemnaWave. Попробуйте позже.",
		fmt.Sprintf(details, args...),
	)
}

func ErrSyncBusyf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrSyncBusy,
		"Sync already running",
		"Синхронизация уже выполняется. Дождитесь её завершения.",
		fmt.Sprintf(details, args...),
	)
}

func ErrPermission(details string) *BotError {
	return NewBotError(
		ErrPermissionDenied,
		"Permission denied",
		"У вас нет прав для выполнения этой операции.",
		details,
	)
}

func ErrAccountNotFoundf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrAccountNotFound,
		"Account not found",
		"Аккаунт не найден.",
		fmt.Sprintf(details, args...),
	)
}
