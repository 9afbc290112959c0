package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ticket_engine/internal/logbus"
	"ticket_engine/internal/model"
)

func TestSuccessText(t *testing.T) {
	got := SuccessText(PurchaseEvent{AccountID: "3", Email: "ana@example.test", OrderNumber: "A123"})
	if got != "✅ Account ana@example.test succeeded! Order: A123" {
		t.Fatalf("got %q", got)
	}
	if got := SuccessText(PurchaseEvent{AccountID: "3"}); got != "✅ Account 3 succeeded!" {
		t.Fatalf("got %q", got)
	}
}

func TestTelegramSendMessage(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramOptions{
		Settings: model.TelegramSettings{BotToken: "123:abc", ChatID: "42"},
		BaseURL:  srv.URL,
	})
	if err := tg.Send(context.Background(), "hola"); err != nil {
		t.Fatalf("send: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if path != "/bot123:abc/sendMessage" {
		t.Fatalf("path=%q", path)
	}
	if body["chat_id"] != "42" || body["text"] != "hola" {
		t.Fatalf("body=%v", body)
	}
}

func TestTelegramErrorIsLoggedNotReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	bus := logbus.New(10)
	tg := NewTelegram(TelegramOptions{
		Settings: model.TelegramSettings{BotToken: "t", ChatID: "c"},
		BaseURL:  srv.URL,
		Bus:      bus,
	})
	err := tg.Send(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("err=%v", err)
	}

	tg.NotifyPurchase(context.Background(), PurchaseEvent{AccountID: "1"})
	msgs := bus.Snapshot()
	if len(msgs) != 1 || msgs[0].Data.(logbus.LogData).Level != "warn" {
		t.Fatalf("msgs=%+v", msgs)
	}
}

func TestTelegramNotConfigured(t *testing.T) {
	tg := NewTelegram(TelegramOptions{})
	if err := tg.Send(context.Background(), "x"); err == nil {
		t.Fatalf("expected error")
	}
}

type recorder struct {
	mu     sync.Mutex
	events []PurchaseEvent
}

func (r *recorder) NotifyPurchase(_ context.Context, evt PurchaseEvent) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func TestMultiAndConsole(t *testing.T) {
	bus := logbus.New(10)
	rec := &recorder{}
	m := Multi{Console{Bus: bus}, nil, rec}
	m.NotifyPurchase(context.Background(), PurchaseEvent{AccountID: "1", Email: "a@b.c"})

	if len(rec.events) != 1 {
		t.Fatalf("events=%d", len(rec.events))
	}
	msgs := bus.Snapshot()
	if len(msgs) != 2 || msgs[0].Type != "purchase" || msgs[1].Type != "log" {
		t.Fatalf("msgs=%+v", msgs)
	}
}

func TestEmailNotifierBatchesUntilClose(t *testing.T) {
	var (
		mu      sync.Mutex
		batches [][]PurchaseEvent
	)
	n := NewEmailNotifier(EmailOptions{
		Settings:      model.EmailSettings{Enabled: true, Email: "me@gmail.com", AuthCode: "x"},
		SummaryWindow: time.Hour,
		Send: func(_ context.Context, _ model.EmailSettings, events []PurchaseEvent) error {
			mu.Lock()
			batches = append(batches, events)
			mu.Unlock()
			return nil
		},
	})
	n.NotifyPurchase(context.Background(), PurchaseEvent{AccountID: "1"})
	n.NotifyPurchase(context.Background(), PurchaseEvent{AccountID: "2"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("batches=%+v", batches)
	}
}

func TestEmailNotifierDisabledSkipsSend(t *testing.T) {
	called := false
	n := NewEmailNotifier(EmailOptions{
		Settings: model.EmailSettings{Enabled: false},
		Send: func(context.Context, model.EmailSettings, []PurchaseEvent) error {
			called = true
			return nil
		},
	})
	n.NotifyPurchase(context.Background(), PurchaseEvent{AccountID: "1"})
	_ = n.Close(context.Background())
	if called {
		t.Fatalf("disabled notifier must not send")
	}
}

func TestSummaryWindow(t *testing.T) {
	zero, big, ten := 0, 9999, 10
	if SummaryWindow(nil) != 20*time.Second || SummaryWindow(&zero) != 0 ||
		SummaryWindow(&big) != 600*time.Second || SummaryWindow(&ten) != 10*time.Second {
		t.Fatalf("unexpected windows")
	}
}

func TestSMTPConfigForEmail(t *testing.T) {
	cases := []struct {
		email string
		host  string
		port  int
	}{
		{"a@gmail.com", "smtp.gmail.com", 587},
		{"a@hotmail.com", "smtp.office365.com", 587},
		{"a@qq.com", "smtp.qq.com", 465},
		{"a@empresa.com.ar", "smtp.empresa.com.ar", 465},
	}
	for _, c := range cases {
		host, port, _, err := smtpConfigForEmail(c.email)
		if err != nil || host != c.host || port != c.port {
			t.Fatalf("%s => %s:%d %v", c.email, host, port, err)
		}
	}
	if _, _, _, err := smtpConfigForEmail("broken"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBuildSummaryEmailBody(t *testing.T) {
	html, text, err := buildSummaryEmailBody([]PurchaseEvent{
		{At: time.Date(2025, 3, 1, 10, 0, 0, 0, time.Local).UnixMilli(), Email: "a@b.c", TicketType: "Campo", Quantity: 2, OrderNumber: "A1"},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(html, "A1") || !strings.Contains(text, "a@b.c | Campo × 2 | 订单 A1") {
		t.Fatalf("text=%q", text)
	}
}
