// Package httpapi 运行期间的只读监控接口：健康检查、实时状态、历史运行和日志流。
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"ticket_engine/internal/config"
	"ticket_engine/internal/logbus"
	"ticket_engine/internal/model"
	"ticket_engine/internal/ws"
)

// StateSource 提供实时状态，engine.Engine 实现了它。
type StateSource interface {
	State() model.EngineState
}

// RunHistory 历史运行查询，sqlite.Store 实现了它。
type RunHistory interface {
	ListRuns(ctx context.Context, limit int) ([]model.RunReport, error)
	GetRun(ctx context.Context, id string) (model.RunReport, bool, error)
}

type Options struct {
	Cfg     config.ServerConfig
	Bus     *logbus.Bus
	Engine  StateSource
	History RunHistory
}

type Server struct {
	cfg     config.ServerConfig
	bus     *logbus.Bus
	engine  StateSource
	history RunHistory
	ws      *ws.Handler
}

func New(opts Options) *Server {
	return &Server{
		cfg:     opts.Cfg,
		bus:     opts.Bus,
		engine:  opts.Engine,
		history: opts.History,
		ws:      ws.NewHandler(opts.Bus, opts.Cfg.Cors.AllowOrigins),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/ws", s.ws)

	api := http.NewServeMux()
	api.HandleFunc("/api/v1/state", s.handleState)
	api.HandleFunc("/api/v1/logs", s.handleLogs)
	api.HandleFunc("/api/v1/runs", s.handleRuns)
	api.HandleFunc("/api/v1/runs/", s.handleRun)

	mux.Handle("/api/", corsMiddleware(s.cfg.Cors, api))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	state := model.EngineState{Workers: []model.WorkerState{}}
	if s.engine != nil {
		state = s.engine.State()
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": state})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	limit, err := parseInt(r.URL.Query().Get("limit"), 200)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid limit"})
		return
	}
	accountID := strings.TrimSpace(r.URL.Query().Get("accountId"))

	out := []logbus.Message{}
	for _, msg := range s.bus.Snapshot() {
		if msg.Type != "log" {
			continue
		}
		if accountID != "" {
			if d, ok := msg.Data.(logbus.LogData); !ok || d.AccountID != accountID {
				continue
			}
		}
		out = append(out, msg)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"data": []model.RunReport{}})
		return
	}
	limit, err := parseInt(r.URL.Query().Get("limit"), 50)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid limit"})
		return
	}
	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": runs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/runs/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "run not found"})
		return
	}
	run, ok, err := s.history.GetRun(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": run})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(v string, def int) (int, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	return strconv.Atoi(strings.TrimSpace(v))
}
