package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"remna-bot/internal/db"
	"remna-bot/internal/reconcile"
	"remna-bot/internal/syncerr"
)

type fakeEngine struct {
	mu    sync.Mutex
	calls int
	err   error

	// если заданы, прогон ждёт закрытия release
	entered chan struct{}
	release chan struct{}
}

func (e *fakeEngine) RunReconciliation(ctx context.Context, mode reconcile.Mode) (*reconcile.RunStatistics, error) {
	e.mu.Lock()
	e.calls++
	err := e.err
	e.mu.Unlock()

	if e.release != nil {
		close(e.entered)
		<-e.release
	}
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &reconcile.RunStatistics{Mode: mode, StartedAt: now, FinishedAt: now, Created: 1, Updated: 2}, nil
}

func (e *fakeEngine) IsRunning() bool { return false }

type captureNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *captureNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

type fakeHealth struct{ err error }

func (h *fakeHealth) Ping(context.Context) error { return h.err }

func setupRepo(t *testing.T) *db.Repository {
	t.Helper()

	repo, err := db.NewRepository("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestParseTimes(t *testing.T) {
	v := validator.New()

	tests := []struct {
		name    string
		in      []string
		want    []string
		wantErr bool
	}{
		{name: "Normalizes and sorts", in: []string{"23:00", " 3:05", "03:05"}, want: []string{"03:05", "23:00"}},
		{name: "Single", in: []string{"00:00"}, want: []string{"00:00"}},
		{name: "Bad hour rejects whole list", in: []string{"03:00", "25:00"}, wantErr: true},
		{name: "Garbage", in: []string{"noon"}, wantErr: true},
		{name: "Empty list", in: []string{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimes(v, tt.in)
			if tt.wantErr {
				if !syncerr.IsValidation(err) {
					t.Errorf("err = %v, want ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimes: %v", err)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	times := []string{"03:00", "12:00"}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{name: "Later today", now: time.Date(2026, 10, 15, 11, 0, 0, 0, loc), want: time.Date(2026, 10, 15, 12, 0, 0, 0, loc)},
		{name: "Rolls to next day", now: time.Date(2026, 10, 15, 13, 0, 0, 0, loc), want: time.Date(2026, 10, 16, 3, 0, 0, 0, loc)},
		{name: "Other zone input", now: time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC), want: time.Date(2026, 10, 15, 12, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextRun(times, tt.now, loc)
			if !ok || !got.Equal(tt.want) {
				t.Errorf("NextRun = %v, %v; want %v", got, ok, tt.want)
			}
		})
	}

	if _, ok := NextRun(nil, time.Now(), loc); ok {
		t.Error("NextRun without times should report no run")
	}
}

func TestSetScheduleRejectsWholeList(t *testing.T) {
	repo := setupRepo(t)
	s := NewScheduler(&fakeEngine{}, repo, nil, nil, Config{Times: []string{"03:00"}})
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if _, err := s.SetSchedule(ctx, []string{"04:00", "4pm"}); !syncerr.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if got := s.Status().Times; len(got) != 1 || got[0] != "03:00" {
		t.Errorf("times after rejected update = %v, want [03:00]", got)
	}
	if _, ok, _ := repo.GetValue(ctx, SettingAutoSyncTimes); ok {
		t.Error("rejected schedule was persisted")
	}

	got, err := s.SetSchedule(ctx, []string{"18:30", "06:00"})
	if err != nil {
		t.Fatalf("SetSchedule: %v", err)
	}
	if strings.Join(got, ",") != "06:00,18:30" {
		t.Errorf("normalized = %v", got)
	}
	if v, _, _ := repo.GetValue(ctx, SettingAutoSyncTimes); v != "06:00,18:30" {
		t.Errorf("persisted times = %q", v)
	}
}

func TestEnableControlsCronEntries(t *testing.T) {
	repo := setupRepo(t)
	s := NewScheduler(&fakeEngine{}, repo, nil, nil, Config{Times: []string{"03:00", "15:00"}})
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if st := s.Status(); st.Enabled || st.NextRunAt != nil || len(s.cron.Entries()) != 0 {
		t.Errorf("disabled scheduler has jobs: %+v", st)
	}

	if err := s.SetEnabled(ctx, true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if st := s.Status(); !st.Enabled || st.NextRunAt == nil {
		t.Errorf("enabled status = %+v", st)
	}
	if n := len(s.cron.Entries()); n != 2 {
		t.Errorf("cron entries = %d, want 2", n)
	}
	if v, _, _ := repo.GetValue(ctx, SettingAutoSyncEnabled); v != "true" {
		t.Errorf("persisted flag = %q", v)
	}
}

func TestRunNowRecordsFailureAndKeepsWorking(t *testing.T) {
	repo := setupRepo(t)
	engine := &fakeEngine{err: syncerr.NotConfigured("REMNAWAVE_TOKEN must be set")}
	s := NewScheduler(engine, repo, nil, nil, Config{})
	ctx := context.Background()

	res := s.RunNow(ctx, ReasonManual)
	if !res.Started || res.Err == nil {
		t.Fatalf("RunNow = %+v, want started with error", res)
	}
	st := s.Status()
	if st.LastRun == nil || st.LastRun.Success || !strings.Contains(st.LastRun.Error, "not configured") {
		t.Errorf("LastRun = %+v", st.LastRun)
	}
	if st.IsRunning {
		t.Error("IsRunning after failed run")
	}

	engine.mu.Lock()
	engine.err = nil
	engine.mu.Unlock()

	res = s.RunNow(ctx, ReasonManual)
	if !res.Started || res.Err != nil || res.Stats.Created != 1 {
		t.Fatalf("second RunNow = %+v", res)
	}
	if st := s.Status(); !st.LastRun.Success || st.LastRun.Error != "" {
		t.Errorf("LastRun after recovery = %+v", st.LastRun)
	}

	runs, err := repo.LatestRuns(ctx, RunKindSync, 10)
	if err != nil || len(runs) != 2 {
		t.Fatalf("LatestRuns = %d, %v; want 2 runs", len(runs), err)
	}
	if !runs[0].Success || runs[1].Success || runs[1].Error == nil {
		t.Errorf("history = %+v", runs)
	}
}

func TestRunNowSingleFlight(t *testing.T) {
	repo := setupRepo(t)
	engine := &fakeEngine{entered: make(chan struct{}), release: make(chan struct{})}
	s := NewScheduler(engine, repo, nil, nil, Config{})
	ctx := context.Background()

	done := make(chan RunResult)
	go func() { done <- s.RunNow(ctx, ReasonManual) }()
	<-engine.entered

	if !s.Status().IsRunning {
		t.Error("Status should report running")
	}
	if res := s.RunNow(ctx, ReasonImmediate); res.Started {
		t.Error("second RunNow started while first in progress")
	}

	close(engine.release)
	res := <-done
	if !res.Started || res.Stats.Created != 1 || res.Stats.Updated != 2 {
		t.Errorf("first run = %+v", res)
	}
	if engine.calls != 1 {
		t.Errorf("engine calls = %d, want 1", engine.calls)
	}
}

func TestStopWaitsForRun(t *testing.T) {
	repo := setupRepo(t)
	engine := &fakeEngine{entered: make(chan struct{}), release: make(chan struct{})}
	s := NewScheduler(engine, repo, nil, nil, Config{})
	ctx := context.Background()

	done := make(chan RunResult, 1)
	go func() { done <- s.RunNow(ctx, ReasonManual) }()
	<-engine.entered

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while run in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(engine.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after run finished")
	}

	if st := s.Status(); st.LastRun == nil || !st.LastRun.Success {
		t.Errorf("LastRun after Stop = %+v, want saved success", st.LastRun)
	}
	runs, err := repo.LatestRuns(ctx, RunKindSync, 10)
	if err != nil || len(runs) != 1 {
		t.Errorf("LatestRuns = %d, %v; want run recorded before Stop returned", len(runs), err)
	}
	if res := <-done; !res.Started || res.Err != nil {
		t.Errorf("run = %+v", res)
	}
}

// blockingStore задерживает запись истории
type blockingStore struct {
	*db.Repository
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) RecordRun(ctx context.Context, run *db.SyncRun) error {
	close(s.entered)
	<-s.release
	return s.Repository.RecordRun(ctx, run)
}

func TestRunStaysBusyUntilRecorded(t *testing.T) {
	repo := setupRepo(t)
	store := &blockingStore{Repository: repo, entered: make(chan struct{}), release: make(chan struct{})}
	engine := &fakeEngine{}
	s := NewScheduler(engine, store, nil, nil, Config{})
	ctx := context.Background()

	done := make(chan RunResult, 1)
	go func() { done <- s.RunNow(ctx, ReasonManual) }()
	<-store.entered

	if !s.Status().IsRunning {
		t.Error("Status should report running while history is written")
	}
	if res := s.RunNow(ctx, ReasonImmediate); res.Started {
		t.Error("second run started before first was recorded")
	}

	close(store.release)
	if res := <-done; !res.Started {
		t.Errorf("first run = %+v", res)
	}
	if s.Status().IsRunning {
		t.Error("IsRunning after run recorded")
	}
	engine.mu.Lock()
	calls := engine.calls
	engine.mu.Unlock()
	if calls != 1 {
		t.Errorf("engine calls = %d, want 1", calls)
	}
}

func TestRunNowEngineBusy(t *testing.T) {
	repo := setupRepo(t)
	s := NewScheduler(&fakeEngine{err: reconcile.ErrRunInProgress}, repo, nil, nil, Config{})

	if res := s.RunNow(context.Background(), ReasonManual); res.Started {
		t.Errorf("RunNow = %+v, want not started", res)
	}
	if s.Status().LastRun != nil {
		t.Error("busy engine must not produce a run record")
	}
}

func TestStartRestoresState(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	repo.SetValue(ctx, SettingAutoSyncEnabled, "true")
	repo.SetValue(ctx, SettingAutoSyncTimes, "21:00,09:00")
	errMsg := "panel down"
	repo.RecordRun(ctx, &db.SyncRun{Kind: RunKindSync, Reason: "auto", StartedAt: time.Now().Add(-2 * time.Hour), Success: true, Created: 4})
	repo.RecordRun(ctx, &db.SyncRun{Kind: RunKindSync, Reason: "auto", StartedAt: time.Now().Add(-time.Hour), Error: &errMsg})

	s := NewScheduler(&fakeEngine{}, repo, nil, nil, Config{Times: []string{"03:00"}})
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	st := s.Status()
	if !st.Enabled || strings.Join(st.Times, ",") != "09:00,21:00" {
		t.Errorf("restored enabled=%v times=%v", st.Enabled, st.Times)
	}
	if st.LastRun == nil || st.LastRun.Success || st.LastRun.Error != errMsg {
		t.Errorf("LastRun = %+v", st.LastRun)
	}
	if st.PreviousStats == nil || st.PreviousStats.Created != 4 {
		t.Errorf("PreviousStats = %+v", st.PreviousStats)
	}
	if st.NextRunAt == nil {
		t.Error("NextRunAt not computed")
	}
}

func TestAutoRunNotifiesAdmin(t *testing.T) {
	repo := setupRepo(t)
	notifier := &captureNotifier{}
	s := NewScheduler(&fakeEngine{}, repo, notifier, nil, Config{})

	s.RunNow(context.Background(), ReasonManual)
	if len(notifier.messages) != 0 {
		t.Errorf("manual run sent %d reports", len(notifier.messages))
	}

	s.autoSync()
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "Создано: 1") {
		t.Errorf("messages = %v", notifier.messages)
	}
}

func TestHealthCheckAlertsOnTransitions(t *testing.T) {
	repo := setupRepo(t)
	notifier := &captureNotifier{}
	health := &fakeHealth{}
	s := NewScheduler(&fakeEngine{}, repo, notifier, health, Config{})

	s.healthCheckPanel()
	health.err = errors.New("connection refused")
	s.healthCheckPanel()
	s.healthCheckPanel()
	health.err = nil
	s.healthCheckPanel()

	if len(notifier.messages) != 2 {
		t.Fatalf("messages = %v, want alert and recovery", notifier.messages)
	}
	if !strings.HasPrefix(notifier.messages[0], "🚨") || !strings.HasPrefix(notifier.messages[1], "✅") {
		t.Errorf("messages = %v", notifier.messages)
	}
}
