// Package queue 处理排队等候室（queue-it）：检测是否在排队，并轮询等待放行。
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ticket_engine/internal/locator"
	"ticket_engine/internal/logbus"
	"ticket_engine/internal/page"
	"ticket_engine/internal/utils"
)

var ErrQueueTimeout = errors.New("queue timeout")

const (
	DefaultDomainPattern = "queue-it.net"
	DefaultCheckInterval = 5 * time.Second
	DefaultTimeout       = 1800 * time.Second
)

const livenessJS = `() => {
	const x = 100 + Math.floor(Math.random() * 400);
	const y = 100 + Math.floor(Math.random() * 300);
	document.dispatchEvent(new MouseEvent('mousemove', { clientX: x, clientY: y, bubbles: true }));
	return document.title;
}`

type Config struct {
	DomainPattern string
	// Frame 页面内嵌的排队 iframe。
	Frame locator.Target
	// Position 排队位置/状态文本，只用于观测。
	Position      locator.Target
	CheckInterval time.Duration
	Timeout       time.Duration
}

type Result struct {
	Queued       bool
	Polls        int
	Waited       time.Duration
	LastPosition string
}

type Gate struct {
	Locator *locator.Locator
	Config  Config
	Log     *logbus.AccountLogger

	// OnPoll 每次仍在排队时回调，供上层更新实时状态。
	OnPoll func(Result)

	Now   func() time.Time
	Sleep func(context.Context, time.Duration) error
}

func New(loc *locator.Locator, cfg Config, log *logbus.AccountLogger) *Gate {
	return &Gate{Locator: loc, Config: cfg, Log: log}
}

func (g *Gate) page() page.Page { return g.Locator.Page }

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Gate) sleep(ctx context.Context, d time.Duration) error {
	if g.Sleep != nil {
		return g.Sleep(ctx, d)
	}
	return utils.Sleep(ctx, d)
}

func (g *Gate) pattern() string {
	if g.Config.DomainPattern == "" {
		return DefaultDomainPattern
	}
	return g.Config.DomainPattern
}

// Queued 当前地址命中排队域名，或页面内存在排队 iframe。
func (g *Gate) Queued(ctx context.Context) bool {
	return g.onQueueDomain() || g.frameVisible(ctx)
}

func (g *Gate) onQueueDomain() bool {
	return strings.Contains(g.page().CurrentURL(), g.pattern())
}

func (g *Gate) frameVisible(ctx context.Context) bool {
	if len(g.Config.Frame.Descriptors) == 0 {
		return false
	}
	return g.Locator.Exists(ctx, g.Config.Frame)
}

// Wait 没有排队时立即返回；否则每个间隔轮询一次，直到放行或超过预算。
func (g *Gate) Wait(ctx context.Context) (Result, error) {
	interval := g.Config.CheckInterval
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	timeout := g.Config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	start := g.now()
	var (
		res      Result
		byDomain bool
	)
	for {
		res.Polls++
		onDomain := g.onQueueDomain()
		queued := onDomain || g.frameVisible(ctx)
		// 因排队域名进入的，地址离开该域名即视为放行，页面上残留的排队挂件不算。
		if byDomain && !onDomain {
			queued = false
		}
		res.Waited = g.now().Sub(start)
		if !queued {
			if res.Queued {
				g.Log.Info("queue", "已离开排队", map[string]any{"polls": res.Polls, "waitedMs": res.Waited.Milliseconds()})
			}
			return res, nil
		}
		if !res.Queued {
			res.Queued = true
			byDomain = onDomain
			g.Log.Info("queue", "检测到排队等候室", map[string]any{"url": g.page().CurrentURL()})
		}

		if text, ok := g.Locator.ReadText(ctx, g.Config.Position); ok {
			res.LastPosition = strings.TrimSpace(text)
		}
		g.Log.Debug("queue", "排队中", map[string]any{"position": res.LastPosition, "polls": res.Polls})
		if g.OnPoll != nil {
			g.OnPoll(res)
		}
		_, _ = g.page().Eval(ctx, livenessJS)

		if res.Waited >= timeout {
			g.Log.Warn("queue", "排队超时", map[string]any{"waitedMs": res.Waited.Milliseconds(), "polls": res.Polls})
			return res, fmt.Errorf("%w after %s", ErrQueueTimeout, res.Waited)
		}
		if err := g.sleep(ctx, interval); err != nil {
			res.Waited = g.now().Sub(start)
			return res, fmt.Errorf("%w: %v", ErrQueueTimeout, err)
		}
	}
}
