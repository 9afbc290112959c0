package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ticket_engine/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "runs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndGetRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.UnixMilli(time.Now().UnixMilli())
	outcomes := []model.AccountOutcome{
		{AccountID: "1", Email: "a@x.test", Success: true, OrderNumber: "A1", StartedAt: start, FinishedAt: start.Add(time.Minute)},
		{AccountID: "2", Email: "b@x.test", Error: model.CodeManualIntervention, Reason: model.ReasonStrongAuth, RequiresManual: true, Proxy: "http://p:1", StartedAt: start, FinishedAt: start.Add(2 * time.Minute)},
	}
	r := model.NewRunReport("run-1", "https://e.test", start, start.Add(3*time.Minute), outcomes)
	if err := s.SaveReport(ctx, r); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := s.GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Total != 2 || got.Succeeded != 1 || got.Failed != 1 || got.Manual != 1 || got.EventURL != "https://e.test" {
		t.Fatalf("run=%+v", got)
	}
	if !got.StartedAt.Equal(start) || len(got.Outcomes) != 2 {
		t.Fatalf("run=%+v", got)
	}
	if o := got.Outcomes[1]; o.AccountID != "2" || !o.RequiresManual || o.Reason != model.ReasonStrongAuth || o.Proxy != "http://p:1" {
		t.Fatalf("outcome=%+v", o)
	}

	// 重复保存覆盖明细而不是追加。
	if err := s.SaveReport(ctx, r); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, _, _ = s.GetRun(ctx, "run-1")
	if len(got.Outcomes) != 2 {
		t.Fatalf("outcomes after resave=%d", len(got.Outcomes))
	}
}

func TestGetRunMissing(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.GetRun(context.Background(), "nope")
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)
	for i, id := range []string{"old", "mid", "new"} {
		at := base.Add(time.Duration(i) * time.Hour)
		if err := s.SaveReport(ctx, model.NewRunReport(id, "", at, at, nil)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "new" || runs[1].RunID != "mid" {
		t.Fatalf("runs=%+v", runs)
	}
	if runs[0].Outcomes != nil {
		t.Fatalf("summaries must not carry outcomes")
	}
}

func TestSaveReportRequiresID(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveReport(context.Background(), model.RunReport{}); err == nil {
		t.Fatalf("expected error")
	}
}
