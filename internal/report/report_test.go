package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ticket_engine/internal/model"
)

func TestWriteAndRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	r := model.NewRunReport("run-7", "https://e.test", start, start.Add(time.Minute), []model.AccountOutcome{
		{AccountID: "1", Success: true, OrderNumber: "A1"},
		{AccountID: "2", Error: model.CodeLoginFailed},
	})
	path, err := Write(dir, r)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if path != filepath.Join(dir, "run-7.json") {
		t.Fatalf("path=%s", path)
	}
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), `"order_number": "A1"`) || !strings.Contains(string(b), `"success": 1`) {
		t.Fatalf("doc=%s", b)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Total != 2 || got.Succeeded != 1 || got.Failed != 1 || len(got.Outcomes) != 2 || !got.StartedAt.Equal(start) {
		t.Fatalf("got=%+v", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestWriteRequiresRunID(t *testing.T) {
	if _, err := Write(t.TempDir(), model.RunReport{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSummary(t *testing.T) {
	cases := []struct {
		r    model.RunReport
		want string
	}{
		{model.RunReport{Total: 3, Succeeded: 3}, "✅ 3/3 accounts succeeded"},
		{model.RunReport{Total: 3, Succeeded: 1, Failed: 2, Manual: 1}, "✅ 1/3 accounts succeeded, 1 need manual attention"},
		{model.RunReport{Total: 2, Failed: 2}, "❌ 0/2 accounts succeeded"},
	}
	for _, c := range cases {
		if got := Summary(c.r); got != c.want {
			t.Fatalf("Summary=%q want %q", got, c.want)
		}
	}
}
