package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ticket_engine/internal/config"
	"ticket_engine/internal/logbus"
	"ticket_engine/internal/model"
)

type fakeEngine struct{ st model.EngineState }

func (f fakeEngine) State() model.EngineState { return f.st }

type fakeHistory struct{ runs map[string]model.RunReport }

func (f fakeHistory) ListRuns(_ context.Context, limit int) ([]model.RunReport, error) {
	out := []model.RunReport{}
	for _, r := range f.runs {
		if len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func (f fakeHistory) GetRun(_ context.Context, id string) (model.RunReport, bool, error) {
	r, ok := f.runs[id]
	return r, ok, nil
}

func newTestServer() (*Server, *logbus.Bus) {
	bus := logbus.New(50)
	s := New(Options{
		Cfg: config.ServerConfig{Cors: config.CorsConfig{AllowOrigins: []string{"http://ui.test"}}},
		Bus: bus,
		Engine: fakeEngine{st: model.EngineState{Running: true, RunID: "r1", Workers: []model.WorkerState{
			{AccountID: "1", Phase: "waiting_room", Running: true, QueuePos: "1234"},
		}}},
		History: fakeHistory{runs: map[string]model.RunReport{
			"r0": {RunID: "r0", Total: 2, Succeeded: 1, Failed: 1, Outcomes: []model.AccountOutcome{{AccountID: "1", Success: true}}},
		}},
	})
	return s, bus
}

func do(t *testing.T, h http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer()
	w := do(t, s.Handler(), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || w.Body.String() != "{\"ok\":true}\n" {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}
}

func TestState(t *testing.T) {
	s, _ := newTestServer()
	w := do(t, s.Handler(), http.MethodGet, "/api/v1/state", nil)
	var body struct {
		Data model.EngineState `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Data.Running || len(body.Data.Workers) != 1 || body.Data.Workers[0].QueuePos != "1234" {
		t.Fatalf("state=%+v", body.Data)
	}

	if w := do(t, s.Handler(), http.MethodPost, "/api/v1/state", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST code=%d", w.Code)
	}
}

func TestRuns(t *testing.T) {
	s, _ := newTestServer()
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/api/v1/runs?limit=5", nil)
	var list struct {
		Data []model.RunReport `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list.Data) != 1 {
		t.Fatalf("list=%s err=%v", w.Body.String(), err)
	}

	w = do(t, h, http.MethodGet, "/api/v1/runs/r0", nil)
	var one struct {
		Data model.RunReport `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &one); err != nil || one.Data.RunID != "r0" || len(one.Data.Outcomes) != 1 {
		t.Fatalf("run=%s err=%v", w.Body.String(), err)
	}

	if w := do(t, h, http.MethodGet, "/api/v1/runs/missing", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing code=%d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/runs?limit=x", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit code=%d", w.Code)
	}
}

func TestLogsFilter(t *testing.T) {
	s, bus := newTestServer()
	bus.Publish("log", logbus.LogData{Level: "info", AccountID: "1", Msg: "a"})
	bus.Publish("log", logbus.LogData{Level: "info", AccountID: "2", Msg: "b"})
	bus.Publish("worker_state", model.WorkerState{AccountID: "2"})

	w := do(t, s.Handler(), http.MethodGet, "/api/v1/logs?accountId=2", nil)
	var body struct {
		Data []struct {
			Type string         `json:"type"`
			Data logbus.LogData `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].Data.Msg != "b" {
		t.Fatalf("logs=%s", w.Body.String())
	}
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer()
	h := s.Handler()

	w := do(t, h, http.MethodOptions, "/api/v1/state", map[string]string{"Origin": "http://ui.test"})
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "http://ui.test" {
		t.Fatalf("preflight code=%d headers=%v", w.Code, w.Header())
	}
	w = do(t, h, http.MethodGet, "/api/v1/state", map[string]string{"Origin": "http://evil.test"})
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected CORS header for foreign origin")
	}
}
