package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SYNC_CONCURRENCY", "")
	t.Setenv("SYNC_TIMES", "")
	t.Setenv("DB_DRIVER", "")

	cfg := Load()

	if cfg.DBDriver != "sqlite" {
		t.Errorf("DBDriver = %q, want sqlite", cfg.DBDriver)
	}
	if cfg.SyncConcurrency != 10 {
		t.Errorf("SyncConcurrency = %d, want 10", cfg.SyncConcurrency)
	}
	if len(cfg.SyncTimes) != 1 || cfg.SyncTimes[0] != "03:00" {
		t.Errorf("SyncTimes = %v, want [03:00]", cfg.SyncTimes)
	}
}

func TestLoadClampsConcurrency(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{name: "Above limit", value: "100", want: MaxSyncConcurrency},
		{name: "Zero", value: "0", want: 1},
		{name: "Garbage", value: "many", want: 10},
		{name: "In range", value: "5", want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SYNC_CONCURRENCY", tt.value)
			if got := Load().SyncConcurrency; got != tt.want {
				t.Errorf("SyncConcurrency = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLoadParsesLists(t *testing.T) {
	t.Setenv("SYNC_TIMES", " 03:00, 15:30 ,,")
	t.Setenv("SYNC_BATCH_PAUSE", "2s")
	t.Setenv("REMNAWAVE_URL", "https://panel.example.com/")
	t.Setenv("REMNAWAVE_TOKEN", "token")

	cfg := Load()

	if len(cfg.SyncTimes) != 2 || cfg.SyncTimes[1] != "15:30" {
		t.Errorf("SyncTimes = %v", cfg.SyncTimes)
	}
	if cfg.SyncBatchPause != 2*time.Second {
		t.Errorf("SyncBatchPause = %v, want 2s", cfg.SyncBatchPause)
	}
	if cfg.RemnawaveURL != "https://panel.example.com" {
		t.Errorf("RemnawaveURL = %q, trailing slash not trimmed", cfg.RemnawaveURL)
	}
	if !cfg.HasPanel() {
		t.Error("HasPanel() = false, want true")
	}
}

func TestLocationFallback(t *testing.T) {
	cfg := &Config{TimeZone: "Nowhere/Invalid"}
	if cfg.Location() != time.UTC {
		t.Error("expected UTC fallback for unknown zone")
	}
}
