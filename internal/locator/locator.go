// Package locator 把一个逻辑目标（按优先级排列的多条描述符）解析为可操作的元素。
package locator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ticket_engine/internal/logbus"
	"ticket_engine/internal/page"
	"ticket_engine/internal/utils"
)

var (
	ErrElementNotFound         = errors.New("element not found")
	ErrQuantityControlNotFound = errors.New("quantity control not found")
)

const (
	DefaultAttemptTimeout = 1500 * time.Millisecond
	DefaultRounds         = 2
	DefaultIncrementPause = 500 * time.Millisecond
)

// Target 逻辑目标，Descriptors 越靠前越精确。
type Target struct {
	Name        string
	Descriptors []page.Descriptor
}

func NewTarget(name string, ds ...page.Descriptor) Target {
	return Target{Name: name, Descriptors: ds}
}

type NotFoundError struct {
	Target string
	Tried  []page.Descriptor
}

func (e *NotFoundError) Error() string {
	tried := make([]string, 0, len(e.Tried))
	for _, d := range e.Tried {
		tried = append(tried, d.String())
	}
	return fmt.Sprintf("%s: no descriptor matched [%s]", e.Target, strings.Join(tried, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrElementNotFound }

type QuantityError struct {
	Target   string
	Want     int
	Achieved int
	Err      error
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("%s: quantity %d/%d: %v", e.Target, e.Achieved, e.Want, e.Err)
}

func (e *QuantityError) Is(target error) bool { return target == ErrQuantityControlNotFound }

func (e *QuantityError) Unwrap() error { return e.Err }

// Match 一次成功解析的结果。
type Match struct {
	Descriptor page.Descriptor
	Element    page.Element
	Text       string
	Attempts   int
}

type Locator struct {
	Page           page.Page
	Log            *logbus.AccountLogger
	AttemptTimeout time.Duration
	Rounds         int
	IncrementPause time.Duration
	// Checkpoints 为 false 时不在成功动作后截图。
	Checkpoints bool
}

func New(p page.Page, log *logbus.AccountLogger) *Locator {
	return &Locator{
		Page:           p,
		Log:            log,
		AttemptTimeout: DefaultAttemptTimeout,
		Rounds:         DefaultRounds,
		IncrementPause: DefaultIncrementPause,
		Checkpoints:    true,
	}
}

func (l *Locator) attemptTimeout() time.Duration {
	if l.AttemptTimeout <= 0 {
		return DefaultAttemptTimeout
	}
	return l.AttemptTimeout
}

func (l *Locator) rounds() int {
	if l.Rounds <= 0 {
		return DefaultRounds
	}
	return l.Rounds
}

// resolve 只做存在性检查：依次尝试每条描述符，直到拿到一个可见元素。
func (l *Locator) resolve(ctx context.Context, t Target) (Match, error) {
	attempts := 0
	for round := 0; round < l.rounds(); round++ {
		for _, d := range t.Descriptors {
			if err := ctx.Err(); err != nil {
				return Match{}, err
			}
			attempts++
			actx, cancel := context.WithTimeout(ctx, l.attemptTimeout())
			el, ok, err := l.Page.Locate(actx, d)
			if err == nil && ok && !el.Visible(actx) {
				ok = false
			}
			cancel()
			if err != nil {
				return Match{}, fmt.Errorf("%s: locate %s: %w", t.Name, d, err)
			}
			if ok {
				return Match{Descriptor: d, Element: el, Attempts: attempts}, nil
			}
		}
	}
	return Match{}, &NotFoundError{Target: t.Name, Tried: append([]page.Descriptor(nil), t.Descriptors...)}
}

// Do 解析目标并对命中的元素执行一次动作。
func (l *Locator) Do(ctx context.Context, t Target, action page.Action, value string) (Match, error) {
	m, err := l.resolve(ctx, t)
	if err != nil {
		l.Log.Debug("locate", "未找到元素", map[string]any{"target": t.Name, "error": err.Error()})
		return Match{}, err
	}
	text, err := l.Page.Act(ctx, m.Element, action, value)
	if err != nil {
		return Match{}, fmt.Errorf("%s: %s via %s: %w", t.Name, action, m.Descriptor, err)
	}
	m.Text = text
	l.Log.Debug("locate", "动作完成", map[string]any{"target": t.Name, "action": string(action), "descriptor": m.Descriptor.String()})
	if l.Checkpoints && action != page.ActionText {
		l.Page.Capture(ctx, t.Name)
	}
	return m, nil
}

func (l *Locator) Click(ctx context.Context, t Target) error {
	_, err := l.Do(ctx, t, page.ActionClick, "")
	return err
}

func (l *Locator) Fill(ctx context.Context, t Target, value string) error {
	_, err := l.Do(ctx, t, page.ActionFill, value)
	return err
}

// Set 给表单控件赋值：<select> 按选项文本选择，其余直接填写。
func (l *Locator) Set(ctx context.Context, t Target, value string) (Match, error) {
	m, err := l.resolve(ctx, t)
	if err != nil {
		return Match{}, err
	}
	action := page.ActionFill
	if tag, _ := m.Element.TagName(ctx); strings.EqualFold(tag, "select") {
		action = page.ActionSelect
	}
	if _, err := l.Page.Act(ctx, m.Element, action, value); err != nil {
		return Match{}, fmt.Errorf("%s: %s via %s: %w", t.Name, action, m.Descriptor, err)
	}
	return m, nil
}

// Exists 单轮存在性检查，不执行任何动作。
func (l *Locator) Exists(ctx context.Context, t Target) bool {
	for _, d := range t.Descriptors {
		if ctx.Err() != nil {
			return false
		}
		actx, cancel := context.WithTimeout(ctx, l.attemptTimeout())
		el, ok, err := l.Page.Locate(actx, d)
		visible := err == nil && ok && el.Visible(actx)
		cancel()
		if visible {
			return true
		}
	}
	return false
}

// ReadText 返回第一条命中描述符的文本。
func (l *Locator) ReadText(ctx context.Context, t Target) (string, bool) {
	for _, d := range t.Descriptors {
		if ctx.Err() != nil {
			return "", false
		}
		actx, cancel := context.WithTimeout(ctx, l.attemptTimeout())
		s, ok := l.Page.ReadText(actx, d)
		cancel()
		if ok {
			return s, true
		}
	}
	return "", false
}

// SetQuantity 把数量设置为 n：命中 INPUT 时直接填写，否则点击 n 次增加按钮，
// 每次都重新解析目标。返回实际达到的数量。
func (l *Locator) SetQuantity(ctx context.Context, t Target, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	achieved := 0
	for achieved < n {
		m, err := l.resolve(ctx, t)
		if err != nil {
			if errors.Is(err, ErrElementNotFound) {
				return achieved, &QuantityError{Target: t.Name, Want: n, Achieved: achieved, Err: err}
			}
			return achieved, err
		}

		if achieved == 0 {
			tag, _ := m.Element.TagName(ctx)
			if strings.EqualFold(tag, "input") {
				if _, err := l.Page.Act(ctx, m.Element, page.ActionFill, strconv.Itoa(n)); err != nil {
					return 0, fmt.Errorf("%s: fill quantity: %w", t.Name, err)
				}
				l.Log.Info("tickets", "数量已直接填写", map[string]any{"count": n, "descriptor": m.Descriptor.String()})
				return n, nil
			}
		}

		if _, err := l.Page.Act(ctx, m.Element, page.ActionClick, ""); err != nil {
			return achieved, fmt.Errorf("%s: increment %d: %w", t.Name, achieved+1, err)
		}
		achieved++
		l.Log.Debug("tickets", "数量 +1", map[string]any{"count": achieved, "descriptor": m.Descriptor.String()})

		if achieved < n && l.IncrementPause > 0 {
			if err := utils.Sleep(ctx, l.IncrementPause); err != nil {
				return achieved, err
			}
		}
	}
	return achieved, nil
}
