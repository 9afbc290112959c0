package captcha

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"ticket_engine/internal/config"
	"ticket_engine/internal/page"
	"ticket_engine/internal/page/pagetest"
)

func newVendor(t *testing.T, h http.HandlerFunc) *TwoCaptcha {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewTwoCaptcha(config.CaptchaConfig{BaseURL: srv.URL, APIKey: "KEY"}, nil)
}

func TestTwoCaptchaSubmitAndPoll(t *testing.T) {
	var polls atomic.Int32
	svc := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/in.php":
			_ = r.ParseForm()
			if r.Form.Get("key") != "KEY" || r.Form.Get("method") != "userrecaptcha" ||
				r.Form.Get("googlekey") != "sk" || r.Form.Get("pageurl") != "https://x/login" || r.Form.Get("json") != "1" {
				_, _ = w.Write([]byte(`{"status":0,"request":"ERROR_BAD_PARAMETERS"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":1,"request":"4242"}`))
		case "/res.php":
			q := r.URL.Query()
			if q.Get("action") != "get" || q.Get("id") != "4242" {
				_, _ = w.Write([]byte(`{"status":0,"request":"ERROR_WRONG_CAPTCHA_ID"}`))
				return
			}
			if polls.Add(1) < 2 {
				w.Header().Set("Content-Type", "text/plain")
				_, _ = w.Write([]byte(`{"status":0,"request":"CAPCHA_NOT_READY"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":1,"request":"03AGdBq24"}`))
		default:
			http.NotFound(w, r)
		}
	})

	ctx := context.Background()
	id, err := svc.Submit(ctx, Job{SiteKey: "sk", PageURL: "https://x/login"})
	if err != nil || id != "4242" {
		t.Fatalf("Submit=%q,%v", id, err)
	}
	res, err := svc.Poll(ctx, id)
	if err != nil || res.State != PollPending {
		t.Fatalf("first poll=%+v,%v", res, err)
	}
	res, err = svc.Poll(ctx, id)
	if err != nil || res.State != PollSolved || res.Token != "03AGdBq24" {
		t.Fatalf("second poll=%+v,%v", res, err)
	}
}

func TestTwoCaptchaSubmitRefused(t *testing.T) {
	svc := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":0,"request":"ERROR_ZERO_BALANCE"}`))
	})
	_, err := svc.Submit(context.Background(), Job{SiteKey: "sk", PageURL: "u"})
	var rej *RejectedError
	if !errors.As(err, &rej) || rej.Status != "ERROR_ZERO_BALANCE" {
		t.Fatalf("err=%v", err)
	}
}

func TestTwoCaptchaPollRejected(t *testing.T) {
	svc := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":0,"request":"ERROR_CAPTCHA_UNSOLVABLE"}`))
	})
	res, err := svc.Poll(context.Background(), "1")
	if err != nil || res.State != PollRejected || res.Status != "ERROR_CAPTCHA_UNSOLVABLE" {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestTwoCaptchaPlainTextSubmit(t *testing.T) {
	svc := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK|777"))
	})
	id, err := svc.Submit(context.Background(), Job{SiteKey: "sk", PageURL: "u"})
	if err != nil || id != "777" {
		t.Fatalf("id=%q err=%v", id, err)
	}
}

func TestExtractSiteKeyAndApplyToken(t *testing.T) {
	p := pagetest.New("https://x/login")
	var gotToken any
	p.EvalFunc = func(_ *pagetest.Page, js string, args []any) (any, error) {
		switch js {
		case siteKeyJS:
			return " 6Lc-site ", nil
		case applyTokenJS:
			gotToken = args[0]
			return map[string]any{"slots": float64(2), "callbacks": float64(1), "errors": float64(0)}, nil
		}
		return nil, errors.New("unexpected script")
	}

	var _ page.Page = p
	if k := ExtractSiteKey(context.Background(), p); k != "6Lc-site" {
		t.Fatalf("sitekey=%q", k)
	}
	res := ApplyToken(context.Background(), p, "TOK")
	if gotToken != "TOK" || res.Slots != 2 || res.Callbacks != 1 || res.Err != nil {
		t.Fatalf("res=%+v token=%v", res, gotToken)
	}
}

func TestApplyTokenBestEffort(t *testing.T) {
	p := pagetest.New("https://x/login")
	p.EvalFunc = func(*pagetest.Page, string, []any) (any, error) { return nil, errors.New("eval failed") }
	if res := ApplyToken(context.Background(), p, "TOK"); res.Err == nil {
		t.Fatalf("expected Err to be reported")
	}
	if k := ExtractSiteKey(context.Background(), p); k != "" {
		t.Fatalf("sitekey=%q", k)
	}
}
