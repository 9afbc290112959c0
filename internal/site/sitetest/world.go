// Package sitetest 用 pagetest 模拟售票站点的各个页面状态，供流程和编排测试使用。
package sitetest

import (
	"strings"
	"sync"

	"ticket_engine/internal/page"
	"ticket_engine/internal/page/pagetest"
	"ticket_engine/internal/site"
)

type Result int

const (
	ResultSuccess Result = iota
	ResultStrongAuth
	// ResultStrongAuthAndSuccess 同时出现强认证和成功横幅。
	ResultStrongAuthAndSuccess
	ResultDeclined
	ResultUnknown
)

const (
	DefaultEventURL = "https://tickets.example.test/event/show-1"
	DefaultLoginURL = "https://tickets.example.test/login"
	AccountURL      = "https://tickets.example.test/mi-cuenta"
	QueueURL        = "https://vendor.queue-it.net/?c=tickets&e=show-1"
	SiteKey         = "6Lc-test-sitekey"
)

type Scenario struct {
	EventURL   string
	TicketType string

	LoggedIn   bool
	LoginFails bool
	Captcha    bool

	// QueuePolls 活动页首次打开时排队的保活次数，之后放行。
	QueuePolls      int
	QueueForever    bool
	QueueAfterLogin bool

	NoQuantity  bool
	Result      Result
	OrderText   string
	DeclineText string
	// DeferResult 提交后不立即展示结果，由测试调用 ShowResult。
	DeferResult bool
}

type World struct {
	Page *pagetest.Page
	Site *site.Catalogue

	sc Scenario

	mu       sync.Mutex
	loggedIn bool
	pings    int
	token    string
	Qty      *pagetest.Element
	Fields   map[string]*pagetest.Element
}

func New(c *site.Catalogue, sc Scenario) *World {
	if sc.EventURL == "" {
		sc.EventURL = DefaultEventURL
	}
	if sc.TicketType == "" {
		sc.TicketType = "General"
	}
	if sc.OrderText == "" {
		sc.OrderText = "Orden #A123"
	}
	if sc.DeclineText == "" {
		sc.DeclineText = "Pago declined por el emisor"
	}
	w := &World{
		Page:     pagetest.New("about:blank"),
		Site:     c,
		sc:       sc,
		loggedIn: sc.LoggedIn,
		Fields:   make(map[string]*pagetest.Element),
	}
	w.build()
	return w
}

func (w *World) put(d page.Descriptor, el *pagetest.Element) *pagetest.Element {
	return w.Page.Put(d, el)
}

func (w *World) build() {
	c := w.Site
	p := w.Page

	p.OnNavigate = func(p *pagetest.Page, url string) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if url != w.sc.EventURL {
			return
		}
		switch {
		case w.sc.QueueForever:
			p.SetURL(QueueURL)
		case w.sc.QueueAfterLogin && w.loggedIn:
			p.SetURL(QueueURL)
			w.pings = -1 << 30
		case w.sc.QueuePolls > 0 && w.pings == 0:
			p.SetURL(QueueURL)
		}
	}
	p.EvalFunc = func(p *pagetest.Page, js string, args []any) (any, error) {
		switch {
		case strings.Contains(js, "mousemove"):
			w.mu.Lock()
			w.pings++
			release := w.pings >= w.sc.QueuePolls && !w.sc.QueueForever
			w.mu.Unlock()
			if release {
				p.SetURL(w.sc.EventURL)
			}
			return "queue", nil
		case strings.Contains(js, "data-sitekey"):
			if w.sc.Captcha && strings.Contains(p.CurrentURL(), "login") {
				return SiteKey, nil
			}
			return "", nil
		case strings.Contains(js, "g-recaptcha-response"):
			if len(args) > 0 {
				w.mu.Lock()
				w.token, _ = args[0].(string)
				w.mu.Unlock()
			}
			return map[string]any{"slots": float64(1), "callbacks": float64(1), "errors": float64(0)}, nil
		}
		return nil, nil
	}

	if !w.sc.LoggedIn {
		w.put(c.Unauthed.Descriptors[0], &pagetest.Element{Name: "login_link", Tag: "A", Text: "Ingresar"})
	}
	w.put(c.LoginEmail.Descriptors[0], &pagetest.Element{Name: "email", Tag: "INPUT"})
	w.put(c.LoginPassword.Descriptors[0], &pagetest.Element{Name: "password", Tag: "INPUT"})
	w.put(c.LoginSubmit.Descriptors[0], &pagetest.Element{Name: "login_submit", OnAct: func(p *pagetest.Page, _ page.Action, _ string) error {
		if w.sc.LoginFails {
			return nil
		}
		w.mu.Lock()
		w.loggedIn = true
		w.mu.Unlock()
		p.SetURL(AccountURL)
		return nil
	}})

	w.put(c.TicketType(w.sc.TicketType).Descriptors[0], &pagetest.Element{Name: "ticket_type", Text: w.sc.TicketType})
	if !w.sc.NoQuantity {
		w.Qty = w.put(c.Quantity.Descriptors[0], &pagetest.Element{Name: "quantity"})
	}
	w.put(c.Continue.Descriptors[0], &pagetest.Element{Name: "continue"})

	for _, f := range c.BillingFields() {
		w.Fields[f.Name] = w.put(f.Target.Descriptors[0], &pagetest.Element{Name: f.Name, Tag: "INPUT"})
	}
	w.Fields["email"] = w.put(c.BillingEmail.Descriptors[0], &pagetest.Element{Name: "billing_email", Tag: "INPUT"})
	for _, f := range c.CardFields() {
		tag := "INPUT"
		if strings.HasPrefix(f.Target.Descriptors[0].Selector, "select") {
			tag = "SELECT"
		}
		w.Fields[f.Name] = w.put(f.Target.Descriptors[0], &pagetest.Element{Name: f.Name, Tag: tag})
	}

	w.put(c.Finalize.Descriptors[0], &pagetest.Element{Name: "finalize", OnAct: func(p *pagetest.Page, _ page.Action, _ string) error {
		if !w.sc.DeferResult {
			w.ShowResult()
		}
		return nil
	}})
}

// ShowResult 按场景把提交结果放到页面上。
func (w *World) ShowResult() {
	c := w.Site
	success := func() {
		w.put(c.SuccessBanner.Descriptors[0], &pagetest.Element{Name: "success", Text: "Compra confirmada"})
		w.put(c.OrderNumber.Descriptors[len(c.OrderNumber.Descriptors)-1], &pagetest.Element{Name: "order", Text: w.sc.OrderText})
	}
	strong := func() {
		w.put(c.StrongAuth.Descriptors[0], &pagetest.Element{Name: "3ds", Tag: "IFRAME"})
	}
	switch w.sc.Result {
	case ResultSuccess:
		success()
	case ResultStrongAuth:
		strong()
	case ResultStrongAuthAndSuccess:
		strong()
		success()
	case ResultDeclined:
		w.put(c.ErrorBanner.Descriptors[len(c.ErrorBanner.Descriptors)-1], &pagetest.Element{Name: "error", Text: w.sc.DeclineText})
	case ResultUnknown:
	}
}

// AppliedToken 注入到页面的验证码 token。
func (w *World) AppliedToken() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.token
}

func (w *World) LoggedIn() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loggedIn
}
