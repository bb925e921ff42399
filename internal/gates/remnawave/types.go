package remnawave

import "time"

// UserStatus - статус пользователя в панели
type UserStatus string

const (
	UserStatusActive   UserStatus = "ACTIVE"
	UserStatusDisabled UserStatus = "DISABLED"
	UserStatusLimited  UserStatus = "LIMITED"
	UserStatusExpired  UserStatus = "EXPIRED"
)

func (s UserStatus) IsEnabled() bool {
	return s == UserStatusActive || s == UserStatusLimited
}

// SquadRef - ссылка на внутренний сквад в составе пользователя
type SquadRef struct {
	UUID string `json:"uuid"`
	Name string `json:"name,omitempty"`
}

// User - пользователь панели (RemoteAccount)
type User struct {
	UUID                 string     `json:"uuid"`
	ShortUUID            string     `json:"shortUuid"`
	Username             string     `json:"username"`
	Status               UserStatus `json:"status"`
	UsedTrafficBytes     int64      `json:"usedTrafficBytes"`
	TrafficLimitBytes    int64      `json:"trafficLimitBytes"`
	ExpireAt             time.Time  `json:"expireAt"`
	OnlineAt             *time.Time `json:"onlineAt"`
	TelegramID           *int64     `json:"telegramId"`
	SubscriptionURL      string     `json:"subscriptionUrl"`
	ActiveInternalSquads []SquadRef `json:"activeInternalSquads"`
}

// SquadIDs - UUID сквадов пользователя
func (u *User) SquadIDs() []string {
	ids := make([]string, 0, len(u.ActiveInternalSquads))
	for _, s := range u.ActiveInternalSquads {
		ids = append(ids, s.UUID)
	}
	return ids
}

type SquadInfo struct {
	MembersCount  int `json:"membersCount"`
	InboundsCount int `json:"inboundsCount"`
}

// Squad - внутренний сквад панели (группа)
type Squad struct {
	UUID string    `json:"uuid"`
	Name string    `json:"name"`
	Info SquadInfo `json:"info"`
}

type CreateUserRequest struct {
	Username             string     `json:"username"`
	Status               UserStatus `json:"status,omitempty"`
	TrafficLimitBytes    int64      `json:"trafficLimitBytes"`
	TrafficLimitStrategy string     `json:"trafficLimitStrategy,omitempty"`
	ExpireAt             time.Time  `json:"expireAt"`
	TelegramID           *int64     `json:"telegramId,omitempty"`
	Description          string     `json:"description,omitempty"`
	ActiveInternalSquads []string   `json:"activeInternalSquads,omitempty"`
}

// UpdateUserRequest - PATCH /api/users, пустые поля не отправляются
type UpdateUserRequest struct {
	UUID                 string     `json:"uuid"`
	Status               UserStatus `json:"status,omitempty"`
	TrafficLimitBytes    *int64     `json:"trafficLimitBytes,omitempty"`
	ExpireAt             *time.Time `json:"expireAt,omitempty"`
	ActiveInternalSquads *[]string  `json:"activeInternalSquads,omitempty"`
}

type usersPage struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
}

type squadsPage struct {
	Total          int     `json:"total"`
	InternalSquads []Squad `json:"internalSquads"`
}

type envelope[T any] struct {
	Response T `json:"response"`
}

type apiError struct {
	Message    string `json:"message"`
	ErrorCode  string `json:"errorCode"`
	StatusCode int    `json:"statusCode"`
}
