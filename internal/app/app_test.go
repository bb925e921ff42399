package app

import (
	"context"
	"path/filepath"
	"testing"

	"remna-bot/internal/config"
	"remna-bot/internal/lock"
	"remna-bot/internal/syncerr"
)

func TestNewWiresEngine(t *testing.T) {
	cfg := &config.Config{
		DBDriver:        "sqlite",
		DBDsn:           ":memory:",
		SyncConcurrency: 2,
		SyncBatchSize:   10,
		SyncTimes:       []string{"03:00"},
		TimeZone:        "UTC",
	}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	// без реквизитов панели прогон прерывается ошибкой конфигурации
	_, err = a.Engine.RunReconciliation(context.Background(), "full")
	if !syncerr.IsConfiguration(err) {
		t.Errorf("RunReconciliation without panel = %v, want ConfigurationError", err)
	}

	s := a.NewScheduler(nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("scheduler Start: %v", err)
	}
	s.Stop()
}

func TestNewLockerSelection(t *testing.T) {
	if l, closer := NewLocker(&config.Config{}); closer != nil {
		t.Error("noop locker should not need closing")
	} else if _, ok := l.(lock.Noop); !ok {
		t.Errorf("locker = %T, want lock.Noop", l)
	}

	path := filepath.Join(t.TempDir(), "sync.lock")
	if l, _ := NewLocker(&config.Config{SyncLockFile: path}); l == nil {
		t.Error("file locker is nil")
	} else if _, ok := l.(*lock.File); !ok {
		t.Errorf("locker = %T, want *lock.File", l)
	}
}
