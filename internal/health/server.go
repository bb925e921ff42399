package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"remna-bot/internal/reconcile"
	"remna-bot/internal/scheduler"
)

// StatusProvider - источник состояния автосинхронизации
type StatusProvider interface {
	Status() scheduler.ScheduleState
}

type Pinger interface {
	Ping() error
}

type Server struct {
	server *http.Server
}

func NewServer(addr string, status StatusProvider, database Pinger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{"status": "ok", "database": "ok"}
		code := http.StatusOK
		if err := database.Ping(); err != nil {
			resp["status"] = "degraded"
			resp["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		sendJSON(w, code, resp)
	})

	if status != nil {
		r.Get("/sync/status", func(w http.ResponseWriter, r *http.Request) {
			sendJSON(w, http.StatusOK, newStatusResponse(status.Status()))
		})
	}

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	slog.Info("Health HTTP сервер запущен", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

type statsResponse struct {
	Mode          string    `json:"mode"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Created       int       `json:"created"`
	Updated       int       `json:"updated"`
	Deactivated   int       `json:"deactivated"`
	Errors        int       `json:"errors"`
	GroupsCreated int       `json:"groups_created"`
	GroupsUpdated int       `json:"groups_updated"`
	GroupsRemoved int       `json:"groups_removed"`
	Summary       string    `json:"summary"`
}

type lastRunResponse struct {
	Reason     string         `json:"reason"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Stats      *statsResponse `json:"stats,omitempty"`
}

type statusResponse struct {
	Enabled       bool             `json:"enabled"`
	Times         []string         `json:"times"`
	IsRunning     bool             `json:"is_running"`
	NextRunAt     *time.Time       `json:"next_run_at,omitempty"`
	LastRun       *lastRunResponse `json:"last_run,omitempty"`
	PreviousStats *statsResponse   `json:"previous_stats,omitempty"`
}

func newStatsResponse(s *reconcile.RunStatistics) *statsResponse {
	if s == nil {
		return nil
	}
	return &statsResponse{
		Mode:          string(s.Mode),
		StartedAt:     s.StartedAt,
		FinishedAt:    s.FinishedAt,
		Created:       s.Created,
		Updated:       s.Updated,
		Deactivated:   s.Deactivated,
		Errors:        s.Errors,
		GroupsCreated: s.GroupsCreated,
		GroupsUpdated: s.GroupsUpdated,
		GroupsRemoved: s.GroupsRemoved,
		Summary:       s.Summary(),
	}
}

func newStatusResponse(st scheduler.ScheduleState) statusResponse {
	resp := statusResponse{
		Enabled:       st.Enabled,
		Times:         st.Times,
		IsRunning:     st.IsRunning,
		NextRunAt:     st.NextRunAt,
		PreviousStats: newStatsResponse(st.PreviousStats),
	}
	if resp.Times == nil {
		resp.Times = []string{}
	}
	if st.LastRun != nil {
		resp.LastRun = &lastRunResponse{
			Reason:     string(st.LastRun.Reason),
			StartedAt:  st.LastRun.StartedAt,
			FinishedAt: st.LastRun.FinishedAt,
			Success:    st.LastRun.Success,
			Error:      st.LastRun.Error,
			Stats:      newStatsResponse(st.LastRun.Stats),
		}
	}
	return resp
}

func sendJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}
