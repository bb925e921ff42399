package db

import "time"

// AccountStatus - статус подписчика в локальной базе
type AccountStatus string

const (
	StatusActive   AccountStatus = "active"
	StatusDisabled AccountStatus = "disabled"
	StatusExpired  AccountStatus = "expired"
)

func (s AccountStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusDisabled, StatusExpired:
		return true
	}
	return false
}

// Account - подписчик. RemnawaveUUID nil, если аккаунт ещё не связан с панелью
type Account struct {
	ID                uint          `gorm:"primaryKey"`
	TelegramID        *int64        `gorm:"index"`
	Username          string        `gorm:"not null;default:''"`
	RemnawaveUUID     *string       `gorm:"uniqueIndex;size:36"`
	ShortUUID         string        `gorm:"default:''"`
	SubscriptionURL   string        `gorm:"default:''"`
	Status            AccountStatus `gorm:"not null;default:'active';index"`
	Balance           int64         `gorm:"not null;default:0"`
	TrafficUsedBytes  int64         `gorm:"not null;default:0"`
	TrafficLimitBytes int64         `gorm:"not null;default:0"`
	ExpiresAt         *time.Time
	LastSeenAt        *time.Time
	SyncedAt          *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Squads []AccountSquad `gorm:"foreignKey:AccountID"`
}

// SquadIDs возвращает множество сквадов аккаунта в виде среза
func (a *Account) SquadIDs() []string {
	ids := make([]string, 0, len(a.Squads))
	for _, s := range a.Squads {
		ids = append(ids, s.SquadUUID)
	}
	return ids
}

func (a *Account) IsLinked() bool {
	return a.RemnawaveUUID != nil && *a.RemnawaveUUID != ""
}

// AccountSquad - подключение аккаунта к скваду панели
type AccountSquad struct {
	AccountID uint   `gorm:"primaryKey;autoIncrement:false"`
	SquadUUID string `gorm:"primaryKey;size:36;index"`
}

// Squad - локальный каталог внутренних сквадов панели
type Squad struct {
	UUID          string `gorm:"primaryKey;size:36"`
	Name          string `gorm:"not null"`
	MembersCount  int
	InboundsCount int
	UpdatedAt     time.Time
}

// Transaction - движение по балансу
type Transaction struct {
	ID          uint   `gorm:"primaryKey"`
	AccountID   uint   `gorm:"not null;index"`
	Amount      int64  `gorm:"not null"`
	Kind        string `gorm:"not null"`
	Description string
	CreatedAt   time.Time
}

// ReferralEarning - начисление рефереру
type ReferralEarning struct {
	ID         uint  `gorm:"primaryKey"`
	AccountID  uint  `gorm:"not null;index"`
	ReferralID uint  `gorm:"not null"`
	Amount     int64 `gorm:"not null"`
	CreatedAt  time.Time
}

// PromoCodeUse - использование промокода
type PromoCodeUse struct {
	ID        uint   `gorm:"primaryKey"`
	AccountID uint   `gorm:"not null;index"`
	Code      string `gorm:"not null"`
	UsedAt    time.Time
}

// Admin - администраторы
type Admin struct {
	TgID     int64  `gorm:"primaryKey"`
	Role     string `gorm:"check:role IN ('super','admin','support')"`
	Disabled bool   `gorm:"default:false"`
}

// SystemSetting - хранилище настроек ключ-значение
type SystemSetting struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// SyncRun - история прогонов синхронизации
type SyncRun struct {
	ID            uint   `gorm:"primaryKey"`
	Kind          string `gorm:"not null;index"`
	Mode          string
	Reason        string `gorm:"not null"`
	StartedAt     time.Time
	FinishedAt    time.Time
	Success       bool
	Error         *string `gorm:"type:text"`
	Created       int
	Updated       int
	Deactivated   int
	Purged        int
	Errors        int
	RemoteCreated int
	RemoteUpdated int
	GroupsCreated int
	GroupsUpdated int
	GroupsRemoved int
}
