package telegram

import (
	"fmt"

	"remna-bot/internal/reconcile"
)

// Command представляет команду бота
type Command string

const (
	CmdStart          Command = "start"
	CmdHelp           Command = "help"
	CmdSync           Command = "sync"
	CmdSyncStatus     Command = "sync_status"
	CmdAutoSync       Command = "autosync"
	CmdSyncSchedule   Command = "sync_schedule"
	CmdSyncToPanel    Command = "sync_to_panel"
	CmdCleanupOrphans Command = "cleanup_orphans"
	CmdSquads         Command = "squads"
	CmdSquadMigrate   Command = "squad_migrate"
	CmdAccount        Command = "account"
	CmdAdmins         Command = "admins"
	CmdAddAdmin       Command = "add_admin"
)

func (c Command) String() string {
	return string(c)
}

func (c Command) IsValid() bool {
	switch c {
	case CmdStart, CmdHelp, CmdSync, CmdSyncStatus, CmdAutoSync,
		CmdSyncSchedule, CmdSyncToPanel, CmdCleanupOrphans, CmdSquads,
		CmdSquadMigrate, CmdAccount, CmdAdmins, CmdAddAdmin:
		return true
	}
	return false
}

func (c Command) IsAdminOnly() bool {
	return c != CmdStart && c != CmdHelp
}

// IsOperational - команда меняет данные или расписание
func (c Command) IsOperational() bool {
	switch c {
	case CmdSync, CmdAutoSync, CmdSyncSchedule:
		return true
	}
	return c.IsSuperAdminOnly()
}

func (c Command) IsSuperAdminOnly() bool {
	switch c {
	case CmdSyncToPanel, CmdCleanupOrphans, CmdSquadMigrate, CmdAdmins, CmdAddAdmin:
		return true
	}
	return false
}

// AdminRole представляет роль администратора
type AdminRole string

const (
	RoleSuper   AdminRole = "super"
	RoleAdmin   AdminRole = "admin"
	RoleSupport AdminRole = "support"
)

func (r AdminRole) String() string {
	return string(r)
}

func (r AdminRole) IsValid() bool {
	switch r {
	case RoleSuper, RoleAdmin, RoleSupport:
		return true
	}
	return false
}

func (r AdminRole) DisplayName() string {
	switch r {
	case RoleSuper:
		return "суперадмин"
	case RoleAdmin:
		return "администратор"
	case RoleSupport:
		return "поддержка"
	}
	return "неизвестная роль"
}

func (r AdminRole) Emoji() string {
	switch r {
	case RoleSuper:
		return "👑"
	case RoleAdmin:
		return "⚡"
	case RoleSupport:
		return "🎧"
	}
	return "👤"
}

func (r AdminRole) CanManageAdmins() bool {
	return r == RoleSuper
}

func (r AdminRole) CanRunSync() bool {
	return r == RoleSuper || r == RoleAdmin
}

// Allows проверяет, может ли роль выполнить команду
func (r AdminRole) Allows(c Command) bool {
	switch {
	case !c.IsAdminOnly():
		return true
	case c.IsSuperAdminOnly():
		return r.CanManageAdmins()
	case c.IsOperational():
		return r.CanRunSync()
	}
	return r.IsValid()
}

// modeTitle - подпись режима синхронизации для кнопок и отчётов
func modeTitle(m reconcile.Mode) string {
	switch m {
	case reconcile.ModeFull:
		return "Полная"
	case reconcile.ModeCreateOnly:
		return "Только новые"
	case reconcile.ModeUpdateOnly:
		return "Только обновление"
	}
	return string(m)
}

// CallbackData представляет callback данные
type CallbackData string

const (
	CallbackAdminList      CallbackData = "admin_list"
	CallbackAdminAdd       CallbackData = "admin_add"
	CallbackAdminDisable   CallbackData = "admin_disable"
	CallbackCleanupConfirm CallbackData = "cleanup_confirm"
	CallbackCleanupCancel  CallbackData = "cleanup_cancel"
	CallbackMigrateConfirm CallbackData = "migrate_confirm"
	CallbackMigrateCancel  CallbackData = "migrate_cancel"
)

func (c CallbackData) String() string {
	return string(c)
}

// CallbackPrefix представляет префиксы callback данных
type CallbackPrefix string

const (
	CallbackSyncMode     CallbackPrefix = "sync_mode_"
	CallbackAccountInfo  CallbackPrefix = "account_info_"
	CallbackDisableAdmin CallbackPrefix = "disable_admin_"
)

func (c CallbackPrefix) String() string {
	return string(c)
}

func (c CallbackPrefix) WithID(id interface{}) string {
	return string(c) + fmt.Sprintf("%v", id)
}
