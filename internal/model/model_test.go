package model

import (
	"testing"
	"time"
)

func TestNewRunReportCounts(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	outcomes := []AccountOutcome{
		{AccountID: "1", Success: true, OrderNumber: "A1"},
		{AccountID: "2", Error: CodeQueueTimeout},
		{AccountID: "3", Error: CodeManualIntervention, Reason: ReasonStrongAuth, RequiresManual: true},
	}
	r := NewRunReport("run", "https://e.test", start, start.Add(time.Minute), outcomes)
	if r.Total != 3 || r.Succeeded != 1 || r.Failed != 2 || r.Manual != 1 {
		t.Fatalf("report=%+v", r)
	}
	if r.Succeeded+r.Failed != r.Total {
		t.Fatalf("success+failure must equal total")
	}

	outcomes[0].OrderNumber = "changed"
	if r.Outcomes[0].OrderNumber != "A1" {
		t.Fatalf("report must own a copy of the outcomes")
	}
}

func TestOutcomeDuration(t *testing.T) {
	start := time.Now()
	if d := (AccountOutcome{StartedAt: start, FinishedAt: start.Add(3 * time.Second)}).Duration(); d != 3*time.Second {
		t.Fatalf("duration=%s", d)
	}
	if d := (AccountOutcome{StartedAt: start}).Duration(); d != 0 {
		t.Fatalf("unfinished duration=%s", d)
	}
}

func TestMaskedEmail(t *testing.T) {
	cases := map[string]string{
		"alice@example.com": "al***@example.com",
		"ab@x.test":         "ab@x.test",
		"not-an-email":      "not-an-email",
		" bob1@x.test ":     "bo**@x.test",
	}
	for in, want := range cases {
		if got := (Account{Email: in}).MaskedEmail(); got != want {
			t.Fatalf("MaskedEmail(%q)=%q want %q", in, got, want)
		}
	}
}

func TestPhaseResultHelpers(t *testing.T) {
	if r := Succeeded("ORD-1"); !r.OK() || r.Payload != "ORD-1" {
		t.Fatalf("succeeded=%+v", r)
	}
	if r := Failed(CodeLoginFailed, "bad password"); r.OK() || r.Status != PhaseTerminal || r.Manual {
		t.Fatalf("failed=%+v", r)
	}
	if r := ManualRequired(ReasonUnknownState); !r.Manual || r.Code != CodeManualIntervention || r.Status != PhaseTerminal {
		t.Fatalf("manual=%+v", r)
	}
}

func TestTelegramEnabled(t *testing.T) {
	if (TelegramSettings{BotToken: "t"}).Enabled() {
		t.Fatalf("chat id is required")
	}
	if !(TelegramSettings{BotToken: "t", ChatID: "1"}).Enabled() {
		t.Fatalf("expected enabled")
	}
}
