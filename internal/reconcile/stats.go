package reconcile

import (
	"fmt"
	"sync"
	"time"
)

// Mode - режим прогона синхронизации
type Mode string

const (
	ModeFull       Mode = "full"
	ModeCreateOnly Mode = "create_only"
	ModeUpdateOnly Mode = "update_only"

	// режимы ниже не принимаются RunReconciliation, ими помечается статистика отдельных операций
	ModeForceCleanup Mode = "force_cleanup"
	ModePush         Mode = "push_to_panel"
)

func (m Mode) IsValid() bool {
	switch m {
	case ModeFull, ModeCreateOnly, ModeUpdateOnly:
		return true
	}
	return false
}

func (m Mode) creates() bool     { return m == ModeFull || m == ModeCreateOnly }
func (m Mode) updates() bool     { return m == ModeFull || m == ModeUpdateOnly }
func (m Mode) deactivates() bool { return m == ModeFull }

// ParseMode принимает пустую строку как full
func ParseMode(s string) (Mode, bool) {
	if s == "" {
		return ModeFull, true
	}
	m := Mode(s)
	return m, m.IsValid()
}

const maxErrorSamples = 5

// RunStatistics - итоги одного прогона
type RunStatistics struct {
	Mode       Mode
	StartedAt  time.Time
	FinishedAt time.Time

	RemoteTotal int
	LocalTotal  int

	Created     int
	Updated     int
	Deactivated int
	Purged      int
	Errors      int

	RemoteCreated int
	RemoteUpdated int

	GroupsCreated int
	GroupsUpdated int
	GroupsRemoved int
	GroupErrors   int

	// первые несколько ошибок для отчёта администратору
	ErrorSamples []string

	mu sync.Mutex
}

func newStats(mode Mode, now time.Time) *RunStatistics {
	return &RunStatistics{Mode: mode, StartedAt: now}
}

func (s *RunStatistics) addError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors++
	s.sample(err)
}

func (s *RunStatistics) addGroupError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GroupErrors++
	s.sample(err)
}

func (s *RunStatistics) sample(err error) {
	if len(s.ErrorSamples) < maxErrorSamples {
		s.ErrorSamples = append(s.ErrorSamples, err.Error())
	}
}

// Summary - строка вида "N created, M updated, K deactivated, E errors"
func (s *RunStatistics) Summary() string {
	switch s.Mode {
	case ModeForceCleanup:
		return fmt.Sprintf("%d purged, %d errors", s.Purged, s.Errors)
	case ModePush:
		return fmt.Sprintf("%d remote created, %d remote updated, %d linked, %d errors",
			s.RemoteCreated, s.RemoteUpdated, s.Updated, s.Errors)
	}
	return fmt.Sprintf("%d created, %d updated, %d deactivated, %d errors",
		s.Created, s.Updated, s.Deactivated, s.Errors)
}

// Clone возвращает копию без внутренней блокировки
func (s *RunStatistics) Clone() *RunStatistics {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return &RunStatistics{
		Mode:          s.Mode,
		StartedAt:     s.StartedAt,
		FinishedAt:    s.FinishedAt,
		RemoteTotal:   s.RemoteTotal,
		LocalTotal:    s.LocalTotal,
		Created:       s.Created,
		Updated:       s.Updated,
		Deactivated:   s.Deactivated,
		Purged:        s.Purged,
		Errors:        s.Errors,
		RemoteCreated: s.RemoteCreated,
		RemoteUpdated: s.RemoteUpdated,
		GroupsCreated: s.GroupsCreated,
		GroupsUpdated: s.GroupsUpdated,
		GroupsRemoved: s.GroupsRemoved,
		GroupErrors:   s.GroupErrors,
		ErrorSamples:  append([]string(nil), s.ErrorSamples...),
	}
}
