package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"remna-bot/internal/reconcile"
	"remna-bot/internal/scheduler"
)

type staticStatus struct{ state scheduler.ScheduleState }

func (s staticStatus) Status() scheduler.ScheduleState { return s.state }

type fakeDB struct{ err error }

func (d fakeDB) Ping() error { return d.err }

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		db       fakeDB
		wantCode int
	}{
		{name: "Liveness", path: "/health", wantCode: http.StatusOK},
		{name: "Healthcheck ok", path: "/healthcheck", wantCode: http.StatusOK},
		{name: "Healthcheck degraded", path: "/healthcheck", db: fakeDB{err: errors.New("database is locked")}, wantCode: http.StatusServiceUnavailable},
		{name: "Unknown path", path: "/metrics", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(":0", staticStatus{}, tt.db)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.wantCode)
			}
		})
	}
}

func TestSyncStatus(t *testing.T) {
	next := time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)
	state := scheduler.ScheduleState{
		Enabled:   true,
		Times:     []string{"03:00"},
		NextRunAt: &next,
		LastRun: &scheduler.LastRun{
			Reason:  scheduler.ReasonAuto,
			Success: true,
			Stats:   &reconcile.RunStatistics{Mode: reconcile.ModeFull, Created: 1, Updated: 1, Deactivated: 1},
		},
	}
	srv := NewServer(":0", staticStatus{state: state}, fakeDB{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}

	var body statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Enabled || body.LastRun == nil || body.LastRun.Stats == nil {
		t.Fatalf("body = %+v", body)
	}
	if body.LastRun.Stats.Summary != "1 created, 1 updated, 1 deactivated, 0 errors" {
		t.Errorf("summary = %q", body.LastRun.Stats.Summary)
	}
	if body.NextRunAt == nil || !body.NextRunAt.Equal(next) {
		t.Errorf("next_run_at = %v", body.NextRunAt)
	}
}
