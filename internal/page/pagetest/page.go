// Package pagetest 提供内存版的 page.Page，供各层测试驱动“站点”状态。
package pagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ticket_engine/internal/page"
)

type Element struct {
	Name   string
	Tag    string
	Text   string
	Hidden bool
	Value  string
	// OnAct 在动作执行后调用，可用来模拟页面跳转、弹出横幅等。
	OnAct func(p *Page, action page.Action, value string) error

	clicks int
}

func (e *Element) TagName(context.Context) (string, error) {
	if e.Tag == "" {
		return "BUTTON", nil
	}
	return e.Tag, nil
}

func (e *Element) Visible(context.Context) bool { return !e.Hidden }

func (e *Element) Clicks() int { return e.clicks }

type ActionRecord struct {
	Element string
	Action  page.Action
	Value   string
}

type Page struct {
	mu       sync.Mutex
	url      string
	elements map[string]*Element

	actions  []ActionRecord
	locates  []page.Descriptor
	navs     []string
	captures []string
	evals    []string
	closed   bool

	NavigateErr error
	OnNavigate  func(p *Page, url string)
	EvalFunc    func(p *Page, js string, args []any) (any, error)
	CloseErr    error
	// ActErr 非空时所有动作都失败（模拟会话异常）。
	ActErr error
}

func New(url string) *Page {
	return &Page{url: url, elements: make(map[string]*Element)}
}

func key(d page.Descriptor) string { return d.String() }

// Put 注册一个能被 d 命中的元素；同一元素可以注册到多个描述符。
func (p *Page) Put(d page.Descriptor, el *Element) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el.Name == "" {
		el.Name = d.String()
	}
	p.elements[key(d)] = el
	return el
}

func (p *Page) Remove(d page.Descriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, key(d))
}

func (p *Page) SetURL(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

func (p *Page) Navigate(ctx context.Context, url string, _ page.WaitPolicy, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.navs = append(p.navs, url)
	err := p.NavigateErr
	hook := p.OnNavigate
	if err == nil {
		p.url = url
	}
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *Page) Locate(ctx context.Context, d page.Descriptor) (page.Element, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false, errors.New("page closed")
	}
	p.locates = append(p.locates, d)
	el, ok := p.elements[key(d)]
	if !ok {
		return nil, false, nil
	}
	return el, true, nil
}

func (p *Page) Act(ctx context.Context, handle page.Element, action page.Action, value string) (string, error) {
	el, ok := handle.(*Element)
	if !ok {
		return "", fmt.Errorf("unexpected element %T", handle)
	}
	p.mu.Lock()
	if p.ActErr != nil {
		err := p.ActErr
		p.mu.Unlock()
		return "", err
	}
	p.actions = append(p.actions, ActionRecord{Element: el.Name, Action: action, Value: value})
	var out string
	switch action {
	case page.ActionClick:
		el.clicks++
	case page.ActionFill, page.ActionSelect:
		el.Value = value
	case page.ActionText:
		out = el.Text
	}
	hook := el.OnAct
	p.mu.Unlock()

	if hook != nil {
		if err := hook(p, action, value); err != nil {
			return "", err
		}
	}
	return out, nil
}

func (p *Page) ReadText(ctx context.Context, d page.Descriptor) (string, bool) {
	el, ok, err := p.Locate(ctx, d)
	if err != nil || !ok {
		return "", false
	}
	return el.(*Element).Text, true
}

func (p *Page) Eval(_ context.Context, js string, args ...any) (any, error) {
	p.mu.Lock()
	p.evals = append(p.evals, js)
	fn := p.EvalFunc
	p.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(p, js, args)
}

func (p *Page) Capture(_ context.Context, label string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captures = append(p.captures, label)
	return label + ".png", true
}

func (p *Page) CurrentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) WaitSettled(context.Context, time.Duration) {}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.CloseErr
}

func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Actions() []ActionRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ActionRecord(nil), p.actions...)
}

func (p *Page) Locates() []page.Descriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]page.Descriptor(nil), p.locates...)
}

func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navs...)
}

func (p *Page) Captures() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.captures...)
}

func (p *Page) Evals() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.evals...)
}
