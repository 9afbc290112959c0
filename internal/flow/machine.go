// Package flow 驱动单个账号走完购票流程：
// 打开活动页 → 排队 → 登录 → 选票 → 填写账单/支付 → 提交订单。
package flow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ticket_engine/internal/captcha"
	"ticket_engine/internal/config"
	"ticket_engine/internal/locator"
	"ticket_engine/internal/logbus"
	"ticket_engine/internal/model"
	"ticket_engine/internal/page"
	"ticket_engine/internal/queue"
	"ticket_engine/internal/site"
	"ticket_engine/internal/utils"
)

type Phase string

const (
	PhaseNavigate        Phase = "navigate"
	PhaseWaitingRoom     Phase = "waiting_room"
	PhaseAuthenticate    Phase = "authenticate"
	PhaseTicketSelection Phase = "ticket_selection"
	PhaseBilling         Phase = "billing_payment"
	PhaseFinalize        Phase = "finalize"
	PhaseDone            Phase = "done"
)

const (
	loginSettle   = time.Second
	selectSettle  = time.Second
	successSettle = 2 * time.Second
)

var (
	hashIDRe  = regexp.MustCompile(`#\s*([A-Za-z0-9-]*[0-9][A-Za-z0-9-]*)`)
	tokenIDRe = regexp.MustCompile(`\b[A-Za-z0-9-]*[0-9][A-Za-z0-9-]*\b`)
)

type Machine struct {
	Page    page.Page
	Locator *locator.Locator
	Gate    *queue.Gate
	Solver  *captcha.Solver
	Site    *site.Catalogue
	Config  config.RunConfig
	Account model.Account
	Log     *logbus.AccountLogger

	// OnPhase 进入每个阶段时回调。
	OnPhase func(Phase)
	Sleep   func(context.Context, time.Duration) error
}

func (m *Machine) sleep(ctx context.Context, d time.Duration) error {
	if m.Sleep != nil {
		return m.Sleep(ctx, d)
	}
	return utils.Sleep(ctx, d)
}

func (m *Machine) capture(ctx context.Context, label string) {
	if path, ok := m.Page.Capture(ctx, label); ok {
		m.Log.Debug("screenshot", "已截图", map[string]any{"label": label, "path": path})
	}
}

// Run 按顺序执行各阶段，任一阶段失败即终止；不做阶段内重试。
func (m *Machine) Run(ctx context.Context) model.AccountOutcome {
	out := model.AccountOutcome{
		AccountID: m.Account.ID,
		Email:     m.Account.Email,
		Proxy:     m.Account.Proxy,
		StartedAt: time.Now(),
	}
	res := m.run(ctx)
	out.FinishedAt = time.Now()
	if res.OK() {
		out.Success = true
		out.OrderNumber = res.Payload
		m.Log.Info("done", "购买成功", map[string]any{"order": res.Payload})
	} else {
		out.Error = res.Code
		out.Reason = res.Reason
		out.RequiresManual = res.Manual
		m.Log.Error("done", "购买未完成", map[string]any{"error": res.Code, "reason": res.Reason, "manual": res.Manual})
	}
	m.enter(PhaseDone)
	return out
}

func (m *Machine) run(ctx context.Context) model.PhaseResult {
	if res := m.phase(ctx, PhaseNavigate, m.navigate); !res.OK() {
		return res
	}
	if res := m.phase(ctx, PhaseWaitingRoom, m.waitingRoom(model.CodeQueueTimeout)); !res.OK() {
		return res
	}

	if m.unauthenticated(ctx) {
		if res := m.phase(ctx, PhaseAuthenticate, m.authenticate); !res.OK() {
			return res
		}
		if res := m.phase(ctx, PhaseNavigate, m.navigate); !res.OK() {
			return res
		}
		if res := m.phase(ctx, PhaseWaitingRoom, m.waitingRoom(model.CodeQueueTimeoutAfterLogin)); !res.OK() {
			return res
		}
	} else {
		m.Log.Info(string(PhaseAuthenticate), "已是登录状态，跳过登录", nil)
	}

	if res := m.phase(ctx, PhaseTicketSelection, m.ticketSelection); !res.OK() {
		return res
	}
	if res := m.phase(ctx, PhaseBilling, m.billingAndPayment); !res.OK() {
		return res
	}
	return m.phase(ctx, PhaseFinalize, m.finalize)
}

func (m *Machine) enter(p Phase) {
	if m.OnPhase != nil {
		m.OnPhase(p)
	}
}

func (m *Machine) phase(ctx context.Context, p Phase, fn func(context.Context) model.PhaseResult) model.PhaseResult {
	m.enter(p)
	m.Log.Info(string(p), "phase_start", nil)
	start := time.Now()
	res := fn(ctx)
	fields := map[string]any{"elapsedMs": time.Since(start).Milliseconds()}
	if res.OK() {
		if res.Payload != "" {
			fields["payload"] = res.Payload
		}
		m.Log.Info(string(p), "phase_complete", fields)
		return res
	}
	fields["code"] = res.Code
	fields["reason"] = res.Reason
	m.Log.Error(string(p), "phase_failed", fields)
	return res
}

func (m *Machine) navigate(ctx context.Context) model.PhaseResult {
	if err := m.Page.Navigate(ctx, m.Config.EventURL, page.WaitNetworkIdle, m.Config.NavigationTimeout); err != nil {
		return model.Failed(model.CodeNavigationFailed, err.Error())
	}
	m.capture(ctx, "event_page")
	return model.Succeeded(m.Page.CurrentURL())
}

func (m *Machine) waitingRoom(code string) func(context.Context) model.PhaseResult {
	return func(ctx context.Context) model.PhaseResult {
		res, err := m.Gate.Wait(ctx)
		if err != nil {
			return model.Failed(code, err.Error())
		}
		if res.Queued {
			m.capture(ctx, "queue_passed")
		}
		return model.Succeeded("")
	}
}

func (m *Machine) unauthenticated(ctx context.Context) bool {
	if strings.Contains(m.Page.CurrentURL(), m.Site.LoginPath) {
		return true
	}
	return m.Locator.Exists(ctx, m.Site.Unauthed)
}

func (m *Machine) loggedIn(ctx context.Context) bool {
	if !strings.Contains(m.Page.CurrentURL(), m.Site.LoginPath) {
		return true
	}
	return m.Locator.Exists(ctx, m.Site.AccountMarker)
}

func (m *Machine) authenticate(ctx context.Context) model.PhaseResult {
	if m.Config.LoginURL != "" {
		if err := m.Page.Navigate(ctx, m.Config.LoginURL, page.WaitNetworkIdle, m.Config.NavigationTimeout); err != nil {
			return model.Failed(model.CodeLoginFailed, "open login page: "+err.Error())
		}
	}
	m.capture(ctx, "login_page")

	if err := m.Locator.Fill(ctx, m.Site.LoginEmail, m.Account.Email); err != nil {
		return model.Failed(model.CodeLoginFailed, missReason("email field", err))
	}
	if err := m.Locator.Fill(ctx, m.Site.LoginPassword, m.Account.Password); err != nil {
		return model.Failed(model.CodeLoginFailed, missReason("password field", err))
	}
	_ = m.sleep(ctx, loginSettle)

	if siteKey := captcha.ExtractSiteKey(ctx, m.Page); siteKey != "" {
		m.Log.Info(string(PhaseAuthenticate), "检测到验证码", map[string]any{"sitekey": siteKey})
		if m.Solver == nil {
			return model.Failed(model.CodeSubmissionRejected, "no captcha solver configured")
		}
		sol, err := m.Solver.Solve(ctx, siteKey, m.Page.CurrentURL())
		if err != nil {
			return model.Failed(captchaCode(err), err.Error())
		}
		applied := captcha.ApplyToken(ctx, m.Page, sol.Token)
		fields := map[string]any{"jobId": sol.JobID, "polls": sol.Polls, "applied": applied.String()}
		if applied.Err != nil {
			fields["error"] = applied.Err.Error()
		}
		m.Log.Info(string(PhaseAuthenticate), "验证码已处理", fields)
		_ = m.sleep(ctx, loginSettle)
	}

	if err := m.Locator.Click(ctx, m.Site.LoginSubmit); err != nil {
		return model.Failed(model.CodeLoginFailed, err.Error())
	}
	m.Page.WaitSettled(ctx, m.Config.NavigationTimeout)

	if !m.loggedIn(ctx) {
		m.capture(ctx, "login_failed")
		return model.Failed(model.CodeLoginFailed, "no post-login signal at "+m.Page.CurrentURL())
	}
	m.capture(ctx, "login_success")
	return model.Succeeded("")
}

func captchaCode(err error) string {
	switch {
	case errors.Is(err, captcha.ErrSubmissionRejected):
		return model.CodeSubmissionRejected
	case errors.Is(err, captcha.ErrSolveRejected):
		return model.CodeSolveRejected
	case errors.Is(err, captcha.ErrChallengeTimeout):
		return model.CodeChallengeTimeout
	default:
		return model.CodeLoginFailed
	}
}

// clickOptional 目标存在时点击；不存在不算失败。
func (m *Machine) clickOptional(ctx context.Context, t locator.Target) bool {
	if !m.Locator.Exists(ctx, t) {
		m.Log.Debug(string(PhaseTicketSelection), "可选步骤不需要", map[string]any{"target": t.Name})
		return false
	}
	if err := m.Locator.Click(ctx, t); err != nil {
		m.Log.Warn(string(PhaseTicketSelection), "可选步骤失败", map[string]any{"target": t.Name, "error": err.Error()})
		return false
	}
	m.Page.WaitSettled(ctx, m.Config.ActionTimeout)
	return true
}

func (m *Machine) ticketSelection(ctx context.Context) model.PhaseResult {
	m.clickOptional(ctx, m.Site.TicketCard)
	date := m.Site.EventDate(m.Config.EventDate)
	if m.Config.EventDate != "" && !m.Locator.Exists(ctx, date) {
		date = m.Site.EventDate("")
	}
	m.clickOptional(ctx, date)
	m.clickOptional(ctx, m.Site.VerEntradas)

	want := m.Config.TicketCount
	if want <= 0 {
		want = 1
	}
	if err := m.Locator.Click(ctx, m.Site.TicketType(m.Config.TicketType)); err != nil {
		return model.Failed(model.CodeTicketSelectionFailed, missReason("ticket type "+m.Config.TicketType, err))
	}
	_ = m.sleep(ctx, selectSettle)

	got, err := m.Locator.SetQuantity(ctx, m.Site.Quantity, want)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, locator.ErrQuantityControlNotFound) {
			reason = model.CodeQuantityControlNotFound + ": " + reason
		}
		return model.Failed(model.CodeTicketSelectionFailed, reason)
	}
	if got != want {
		return model.Failed(model.CodeTicketSelectionFailed, fmt.Sprintf("quantity %d/%d", got, want))
	}
	m.Log.Info(string(PhaseTicketSelection), "数量已设置", map[string]any{"count": got, "type": m.Config.TicketType})
	m.capture(ctx, "tickets_selected")

	if err := m.Locator.Click(ctx, m.Site.Continue); err != nil {
		return model.Failed(model.CodeTicketSelectionFailed, missReason("continue", err))
	}
	m.Page.WaitSettled(ctx, m.Config.NavigationTimeout)
	return model.Succeeded(strconv.Itoa(got))
}

func billingValues(a model.Account) map[string]string {
	if a.Billing == nil {
		return nil
	}
	b := a.Billing
	return map[string]string{
		"first_name":      b.FirstName,
		"last_name":       b.LastName,
		"document_number": b.DocumentNumber,
		"phone":           b.Phone,
		"address":         b.Address,
		"city":            b.City,
		"postal_code":     b.PostalCode,
	}
}

func cardValues(a model.Account) map[string]string {
	if a.Card == nil {
		return nil
	}
	c := a.Card
	return map[string]string{
		"number":       c.Number,
		"holder":       c.Holder,
		"expiry_month": c.ExpiryMonth,
		"expiry_year":  c.ExpiryYear,
		"cvv":          c.CVV,
	}
}

// fillFields 逐个填写；缺值跳过，单个字段失败只记日志。
func (m *Machine) fillFields(ctx context.Context, fields []site.Field, values map[string]string, secret bool) (filled, skipped int) {
	for _, f := range fields {
		v := strings.TrimSpace(values[f.Name])
		if v == "" {
			skipped++
			continue
		}
		if _, err := m.Locator.Set(ctx, f.Target, v); err != nil {
			skipped++
			m.Log.Warn(string(PhaseBilling), "字段填写失败，已跳过", map[string]any{"field": f.Name, "error": err.Error()})
			continue
		}
		filled++
		shown := v
		if secret {
			shown = utils.MaskSecret(v)
		}
		m.Log.Debug(string(PhaseBilling), "字段已填写", map[string]any{"field": f.Name, "value": shown})
	}
	return filled, skipped
}

func (m *Machine) billingAndPayment(ctx context.Context) model.PhaseResult {
	values := billingValues(m.Account)
	if values == nil {
		values = map[string]string{}
	}
	values["email"] = m.Account.Email
	fields := append(m.Site.BillingFields(), site.Field{Name: "email", Target: m.Site.BillingEmail})
	filled, skipped := m.fillFields(ctx, fields, values, false)
	m.Log.Info(string(PhaseBilling), "账单信息已填写", map[string]any{"filled": filled, "skipped": skipped})
	m.capture(ctx, "billing_filled")

	filled, skipped = m.fillFields(ctx, m.Site.CardFields(), cardValues(m.Account), true)
	m.Log.Info(string(PhaseBilling), "支付信息已填写", map[string]any{"filled": filled, "skipped": skipped})
	m.capture(ctx, "payment_filled")

	if err := ctx.Err(); err != nil {
		return model.Failed(model.CodeCheckoutPreparationFailed, err.Error())
	}
	return model.Succeeded("")
}

// finalize 提交订单并按优先级判定结果：强认证 > 错误横幅 > 成功横幅 > 未知状态。
func (m *Machine) finalize(ctx context.Context) model.PhaseResult {
	m.capture(ctx, "before_submit")
	if err := m.Locator.Click(ctx, m.Site.Finalize); err != nil {
		return model.Failed(model.CodePurchaseFailed, missReason("confirm control", err))
	}
	_ = m.sleep(ctx, m.Config.SettleDelay)

	if res, ok := m.classify(ctx); ok {
		return res
	}
	// 页面可能还在跳转，再等一次后按同样的优先级重新判定。
	_ = m.sleep(ctx, successSettle)
	if res, ok := m.classify(ctx); ok {
		return res
	}
	m.capture(ctx, "purchase_unknown_state")
	return model.ManualRequired(model.ReasonUnknownState)
}

// classify 按优先级判定提交后的页面；三种信号都没有时 ok 为 false。
func (m *Machine) classify(ctx context.Context) (model.PhaseResult, bool) {
	if m.Locator.Exists(ctx, m.Site.StrongAuth) {
		m.capture(ctx, "strong_auth_detected")
		return model.ManualRequired(model.ReasonStrongAuth), true
	}
	if text, ok := m.Locator.ReadText(ctx, m.Site.ErrorBanner); ok {
		m.capture(ctx, "payment_error")
		reason := strings.TrimSpace(text)
		if reason == "" {
			reason = "error banner"
		}
		return model.Failed(model.CodePurchaseFailed, reason), true
	}
	if !m.Locator.Exists(ctx, m.Site.SuccessBanner) {
		return model.PhaseResult{}, false
	}
	m.capture(ctx, "purchase_success")
	text, _ := m.Locator.ReadText(ctx, m.Site.OrderNumber)
	return model.Succeeded(ExtractOrderNumber(text)), true
}

// missReason 元素找不到时在原因前加上 element_not_found。
func missReason(what string, err error) string {
	if errors.Is(err, locator.ErrElementNotFound) {
		return model.CodeElementNotFound + ": " + what + ": " + err.Error()
	}
	return what + ": " + err.Error()
}

// ExtractOrderNumber 从确认文本里提取订单号；没有像编号的片段时返回空串。
func ExtractOrderNumber(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	if s == "" {
		return ""
	}
	if m := hashIDRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	for _, tok := range tokenIDRe.FindAllString(s, -1) {
		if len(tok) >= 4 {
			return tok
		}
	}
	return ""
}
