package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"remna-bot/internal/db"
	"remna-bot/internal/reconcile"
)

const (
	SettingAutoSyncEnabled = "remnawave_auto_sync_enabled"
	SettingAutoSyncTimes   = "remnawave_auto_sync_times"

	RunKindSync    = "sync"
	RunKindCleanup = "cleanup"
	RunKindPush    = "push"

	healthSpec = "*/5 * * * *"
)

type Reason string

const (
	ReasonManual    Reason = "manual"
	ReasonAuto      Reason = "auto"
	ReasonImmediate Reason = "immediate"
)

type Engine interface {
	RunReconciliation(ctx context.Context, mode reconcile.Mode) (*reconcile.RunStatistics, error)
	IsRunning() bool
}

type Store interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) error
	RecordRun(ctx context.Context, run *db.SyncRun) error
	LatestRuns(ctx context.Context, kind string, limit int) ([]db.SyncRun, error)
}

// Notifier доставляет отчёты администратору
type Notifier interface {
	Notify(message string)
}

type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// HealthChecker - проверка доступности панели
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Config struct {
	// значения по умолчанию, пока в настройках ничего не сохранено
	Enabled  bool
	Times    []string
	Location *time.Location
}

type LastRun struct {
	Reason     Reason
	StartedAt  time.Time
	FinishedAt time.Time
	Success    bool
	Error      string
	Stats      *reconcile.RunStatistics
}

// ScheduleState - снимок состояния планировщика
type ScheduleState struct {
	Enabled       bool
	Times         []string
	IsRunning     bool
	NextRunAt     *time.Time
	LastRun       *LastRun
	PreviousStats *reconcile.RunStatistics
}

type RunResult struct {
	Started bool
	Stats   *reconcile.RunStatistics
	Err     error
}

type Scheduler struct {
	cron     *cron.Cron
	engine   Engine
	store    Store
	notifier Notifier
	health   HealthChecker
	loc      *time.Location
	validate *validator.Validate
	defaults Config

	mu       sync.Mutex
	enabled  bool
	times    []string
	entries  []cron.EntryID
	running  bool
	lastRun  *LastRun
	previous *reconcile.RunStatistics
	healthy  bool

	runs sync.WaitGroup
	now  func() time.Time
}

func NewScheduler(engine Engine, store Store, notifier Notifier, health HealthChecker, cfg Config) *Scheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	if notifier == nil {
		notifier = NotifierFunc(func(string) {})
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		engine:   engine,
		store:    store,
		notifier: notifier,
		health:   health,
		loc:      loc,
		validate: validator.New(),
		defaults: cfg,
		healthy:  true,
		now:      time.Now,
	}
}

// Start загружает сохранённое состояние и запускает cron
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Load(ctx); err != nil {
		return err
	}

	if s.health != nil {
		if _, err := s.cron.AddFunc(healthSpec, s.healthCheckPanel); err != nil {
			return fmt.Errorf("failed to add panel health check job: %w", err)
		}
	}

	s.mu.Lock()
	err := s.rebuildLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.cron.Start()
	slog.Info("Sync scheduler started", "enabled", s.enabled, "times", s.times, "tz", s.loc.String())
	return nil
}

// Stop останавливает cron и дожидается завершения текущего прогона
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.runs.Wait()
	slog.Info("Sync scheduler stopped")
}

// Load читает сохранённые настройки и историю без запуска cron
func (s *Scheduler) Load(ctx context.Context) error {
	enabled := s.defaults.Enabled
	if v, ok, err := s.store.GetValue(ctx, SettingAutoSyncEnabled); err != nil {
		return fmt.Errorf("load auto sync flag: %w", err)
	} else if ok {
		if b, err := strconv.ParseBool(v); err == nil {
			enabled = b
		} else {
			slog.Warn("Invalid stored auto sync flag, using default", "value", v)
		}
	}

	times, err := ParseTimes(s.validate, s.defaults.Times)
	if err != nil {
		times = nil
	}
	if v, ok, err := s.store.GetValue(ctx, SettingAutoSyncTimes); err != nil {
		return fmt.Errorf("load auto sync times: %w", err)
	} else if ok && v != "" {
		if stored, err := ParseTimes(s.validate, strings.Split(v, ",")); err == nil {
			times = stored
		} else {
			slog.Warn("Invalid stored auto sync times, using default", "value", v, "error", err)
		}
	}

	runs, err := s.store.LatestRuns(ctx, RunKindSync, 2)
	if err != nil {
		return fmt.Errorf("load sync history: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	s.times = times
	if len(runs) > 0 {
		s.lastRun = lastRunFromRecord(runs[0])
	}
	if len(runs) > 1 {
		s.previous = statsFromRecord(runs[1])
	}
	return nil
}

// rebuildLocked пересоздаёт cron-задачи синхронизации. Вызывается под s.mu
func (s *Scheduler) rebuildLocked() error {
	for _, id := range s.entries {
		s.cron.Remove(id)
	}
	s.entries = nil

	if !s.enabled {
		return nil
	}
	for _, t := range s.times {
		spec, err := cronSpec(t)
		if err != nil {
			return err
		}
		id, err := s.cron.AddFunc(spec, s.autoSync)
		if err != nil {
			return fmt.Errorf("failed to add sync job at %s: %w", t, err)
		}
		s.entries = append(s.entries, id)
	}
	return nil
}

// Status никогда не блокируется на время прогона
func (s *Scheduler) Status() ScheduleState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := ScheduleState{
		Enabled:       s.enabled,
		Times:         append([]string(nil), s.times...),
		IsRunning:     s.running || s.engine.IsRunning(),
		PreviousStats: s.previous.Clone(),
	}
	if s.enabled {
		if next, ok := NextRun(s.times, s.now(), s.loc); ok {
			state.NextRunAt = &next
		}
	}
	if s.lastRun != nil {
		last := *s.lastRun
		last.Stats = s.lastRun.Stats.Clone()
		state.LastRun = &last
	}
	return state
}

func (s *Scheduler) SetEnabled(ctx context.Context, enabled bool) error {
	if err := s.store.SetValue(ctx, SettingAutoSyncEnabled, strconv.FormatBool(enabled)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	slog.Info("Auto sync toggled", "enabled", enabled)
	return s.rebuildLocked()
}

// SetSchedule сохраняет новый список ежедневных времён. Неверный список не меняет ничего
func (s *Scheduler) SetSchedule(ctx context.Context, times []string) ([]string, error) {
	normalized, err := ParseTimes(s.validate, times)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetValue(ctx, SettingAutoSyncTimes, strings.Join(normalized, ",")); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.times = normalized
	slog.Info("Auto sync schedule updated", "times", normalized)
	return normalized, s.rebuildLocked()
}

func (s *Scheduler) autoSync() {
	res := s.RunNow(context.Background(), ReasonAuto)
	if !res.Started {
		slog.Info("Scheduled sync skipped: another run in progress")
	}
}

// RunNow запускает полную синхронизацию. Если прогон уже идёт, возвращает Started=false без побочных эффектов
func (s *Scheduler) RunNow(ctx context.Context, reason Reason) RunResult {
	return s.RunMode(ctx, reason, reconcile.ModeFull)
}

// RunMode - RunNow с выбором режима, для ручных частичных прогонов
func (s *Scheduler) RunMode(ctx context.Context, reason Reason, mode reconcile.Mode) RunResult {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return RunResult{Started: false}
	}
	s.running = true
	s.runs.Add(1)
	s.mu.Unlock()
	defer s.runs.Done()

	started := s.now()
	stats, err := s.engine.RunReconciliation(ctx, mode)
	if errors.Is(err, reconcile.ErrRunInProgress) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return RunResult{Started: false}
	}

	last := &LastRun{
		Reason:     reason,
		StartedAt:  started,
		FinishedAt: s.now(),
		Success:    err == nil,
		Stats:      stats,
	}
	if err != nil {
		last.Error = err.Error()
		slog.Error("Sync run failed", "reason", reason, "mode", mode, "error", err)
	}

	// история пишется до снятия флага, чтобы следующий прогон не записался раньше
	record := NewRunRecord(RunKindSync, string(reason), started, stats, err)
	record.FinishedAt = last.FinishedAt
	if recErr := s.store.RecordRun(context.WithoutCancel(ctx), record); recErr != nil {
		slog.Error("Failed to record sync run", "error", recErr)
	}

	s.mu.Lock()
	if s.lastRun != nil {
		s.previous = s.lastRun.Stats
	}
	s.lastRun = last
	s.running = false
	s.mu.Unlock()

	if reason == ReasonAuto {
		s.notifier.Notify(FormatRunReport(last))
	}

	return RunResult{Started: true, Stats: stats, Err: err}
}

// healthCheckPanel проверяет панель и сообщает администратору о смене состояния
func (s *Scheduler) healthCheckPanel() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.health.Ping(ctx)

	s.mu.Lock()
	wasHealthy := s.healthy
	s.healthy = err == nil
	s.mu.Unlock()

	switch {
	case err != nil && wasHealthy:
		slog.Warn("Health alert", "message", "remnawave panel unavailable", "error", err)
		s.notifier.Notify(fmt.Sprintf("🚨 Панель RemnaWave недоступна: %v", err))
	case err == nil && !wasHealthy:
		slog.Info("Remnawave panel is available again")
		s.notifier.Notify("✅ Панель RemnaWave снова доступна")
	case err == nil:
		slog.Debug("Remnawave panel health check passed")
	}
}
