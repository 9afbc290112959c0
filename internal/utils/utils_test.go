package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNormalizeDesktopUserAgent(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", DefaultDesktopUserAgent()},
		{"   ", DefaultDesktopUserAgent()},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 18_7 like Mac OS X) Mobile/15E148", DefaultDesktopUserAgent()},
		{"curl/8.0", DefaultDesktopUserAgent()},
		{"Mozilla/5.0 (X11; Linux x86_64) Chrome/121.0", "Mozilla/5.0 (X11; Linux x86_64) Chrome/121.0"},
	}
	for _, c := range cases {
		if got := NormalizeDesktopUserAgent(c.in); got != c.want {
			t.Fatalf("NormalizeDesktopUserAgent(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := Sleep(ctx, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Sleep did not return promptly")
	}
}

func TestSleepElapses(t *testing.T) {
	if err := Sleep(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if !SleepUntil(context.Background(), time.Now().Add(-time.Second)) {
		t.Fatalf("SleepUntil in the past should return true")
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("abc"); got != "****" {
		t.Fatalf("got %q", got)
	}
	if got := MaskSecret("abcdef123456"); got != "ab****56" {
		t.Fatalf("got %q", got)
	}
}
