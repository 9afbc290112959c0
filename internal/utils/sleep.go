package utils

import (
	"context"
	"time"
)

// Sleep 等待 d 或 ctx 结束，后者返回 ctx.Err()。
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SleepUntil 等到 t；ctx 先结束时返回 false。
func SleepUntil(ctx context.Context, t time.Time) bool {
	return Sleep(ctx, time.Until(t)) == nil
}

func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}
