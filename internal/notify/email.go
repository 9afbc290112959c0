package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"ticket_engine/internal/logbus"
	"ticket_engine/internal/model"
)

const defaultSummaryWindow = 20 * time.Second

type EmailOptions struct {
	Settings model.EmailSettings
	Bus      *logbus.Bus
	// SummaryWindow 合并窗口；<=0 表示每条立即发送。
	SummaryWindow time.Duration
	MaxBatch      int
	// Send 为空时通过 SMTP 发送。
	Send func(ctx context.Context, settings model.EmailSettings, events []PurchaseEvent) error
}

// EmailNotifier 把成功事件排队，在一个窗口内合并成一封汇总邮件。
type EmailNotifier struct {
	settings model.EmailSettings
	bus      *logbus.Bus
	send     func(ctx context.Context, settings model.EmailSettings, events []PurchaseEvent) error

	mu     sync.Mutex
	queue  chan PurchaseEvent
	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup

	summaryWindow time.Duration
	maxBatch      int
}

func NewEmailNotifier(opts EmailOptions) *EmailNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &EmailNotifier{
		settings:      opts.Settings,
		bus:           opts.Bus,
		send:          opts.Send,
		queue:         make(chan PurchaseEvent, 200),
		ctx:           ctx,
		cancel:        cancel,
		summaryWindow: opts.SummaryWindow,
		maxBatch:      opts.MaxBatch,
	}
	if n.send == nil {
		n.send = SendPurchaseSummaryEmail
	}
	if n.maxBatch <= 0 {
		n.maxBatch = 80
	}
	n.wg.Add(1)
	go n.loop()
	return n
}

// SummaryWindow 把配置中的秒数换算成窗口，未配置时 20s，上限 600s。
func SummaryWindow(seconds *int) time.Duration {
	if seconds == nil {
		return defaultSummaryWindow
	}
	n := *seconds
	if n <= 0 {
		return 0
	}
	if n > 600 {
		n = 600
	}
	return time.Duration(n) * time.Second
}

// Close 停止接收并把未发送的事件冲刷出去。
func (n *EmailNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) NotifyPurchase(_ context.Context, evt PurchaseEvent) {
	select {
	case n.queue <- evt:
	default:
		n.bus.Log("warn", "邮件通知丢弃：队列已满", map[string]any{
			"accountId":   evt.AccountID,
			"orderNumber": evt.OrderNumber,
		})
	}
}

func (n *EmailNotifier) loop() {
	defer n.wg.Done()

	var (
		pending []PurchaseEvent
		timer   *time.Timer
		timerCh <-chan time.Time
	)

	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
		timerCh = nil
	}

	resetTimer := func() {
		if n.summaryWindow <= 0 {
			return
		}
		if timer == nil {
			timer = time.NewTimer(n.summaryWindow)
			timerCh = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(n.summaryWindow)
	}

	flush := func(reason string) {
		if len(pending) == 0 {
			stopTimer()
			return
		}
		events := append([]PurchaseEvent(nil), pending...)
		pending = pending[:0]
		stopTimer()
		n.handleBatch(reason, events)
	}

	for {
		select {
		case <-n.ctx.Done():
			// 关闭前把队列里剩下的也取出来。
			for {
				select {
				case evt := <-n.queue:
					pending = append(pending, evt)
					continue
				default:
				}
				break
			}
			flush("shutdown")
			return
		case evt := <-n.queue:
			pending = append(pending, evt)
			if len(pending) >= n.maxBatch {
				flush("max")
				continue
			}
			if n.summaryWindow <= 0 {
				flush("immediate")
				continue
			}
			resetTimer()
		case <-timerCh:
			flush("idle")
		}
	}
}

func (n *EmailNotifier) handleBatch(reason string, events []PurchaseEvent) {
	if !n.settings.Enabled {
		n.bus.Log("info", "邮件通知未启用", map[string]any{
			"count":  len(events),
			"reason": reason,
		})
		return
	}
	if err := validateEmailSettings(n.settings); err != nil {
		n.bus.Log("warn", "邮件配置无效", map[string]any{"error": err.Error()})
		return
	}

	// 关闭时 n.ctx 已取消，冲刷用独立的超时。
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := n.send(ctx, n.settings, events); err != nil {
		n.bus.Log("warn", "邮件发送失败", map[string]any{
			"error":  err.Error(),
			"count":  len(events),
			"reason": reason,
		})
		return
	}

	n.bus.Log("info", "通知邮件已发送", map[string]any{
		"count":  len(events),
		"reason": reason,
		"to":     strings.TrimSpace(n.settings.Email),
	})
}

func validateEmailSettings(s model.EmailSettings) error {
	email := strings.TrimSpace(s.Email)
	if email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email")
	}
	if strings.TrimSpace(s.AuthCode) == "" {
		return errors.New("authCode is required")
	}
	return nil
}

// SendPurchaseSummaryEmail 通过邮箱对应的 SMTP 服务发给自己。
func SendPurchaseSummaryEmail(ctx context.Context, settings model.EmailSettings, events []PurchaseEvent) error {
	if err := validateEmailSettings(settings); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return errors.New("no events")
	}

	email := strings.TrimSpace(settings.Email)
	host, port, useSSL, err := smtpConfigForEmail(email)
	if err != nil {
		return err
	}
	htmlBody, textBody, err := buildSummaryEmailBody(events)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(email, "抢票助手"))
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", buildSummarySubject(events))
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(host, port, email, strings.TrimSpace(settings.AuthCode))
	d.SSL = useSSL
	return d.DialAndSend(msg)
}

func smtpConfigForEmail(email string) (host string, port int, useSSL bool, err error) {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return "", 0, false, errors.New("invalid email format")
	}
	domain := strings.ToLower(strings.TrimSpace(parts[1]))
	is := func(names ...string) bool {
		for _, name := range names {
			if domain == name || strings.HasSuffix(domain, "."+name) {
				return true
			}
		}
		return false
	}

	switch {
	case is("gmail.com"):
		return "smtp.gmail.com", 587, false, nil
	case is("outlook.com", "hotmail.com", "live.com"):
		return "smtp.office365.com", 587, false, nil
	case is("yahoo.com", "yahoo.com.ar"):
		return "smtp.mail.yahoo.com", 465, true, nil
	case is("qq.com", "foxmail.com"):
		return "smtp.qq.com", 465, true, nil
	case is("163.com", "126.com", "yeah.net"):
		return "smtp.163.com", 465, true, nil
	default:
		return "smtp." + domain, 465, true, nil
	}
}

func buildSummarySubject(events []PurchaseEvent) string {
	if len(events) == 1 {
		return "购票成功：" + safeText(events[0].Email, events[0].AccountID)
	}
	return fmt.Sprintf("购票结果汇总（%d个账号成功）", len(events))
}

var emailSummaryHTMLTpl = template.Must(template.New("email-summary").Parse(`
<!doctype html>
<html lang="zh-CN">
  <head><meta charset="utf-8" /><title>购票结果汇总</title></head>
  <body style="margin:0;padding:24px;background:#f6f8fb;font-family:-apple-system,'Segoe UI',Roboto,Arial,sans-serif;">
    <div style="max-width:720px;margin:0 auto;background:#ffffff;border:1px solid #e6e8ef;border-radius:14px;overflow:hidden;">
      <div style="padding:18px 22px;background:linear-gradient(135deg,#10b981,#0ea5e9);color:#ffffff;font-size:16px;font-weight:700;">购票成功</div>
      <div style="padding:22px;">
        <div style="font-size:14px;color:#111827;">共 <strong>{{ .Total }}</strong> 个账号，时间范围：{{ .Start }} ~ {{ .End }}</div>
        <table role="presentation" cellspacing="0" cellpadding="0" border="0" style="margin-top:12px;width:100%;border-collapse:collapse;">
          <thead>
            <tr style="background:#fafbff;">
              <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;">时间</th>
              <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;">账号</th>
              <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;">票种</th>
              <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;">订单号</th>
            </tr>
          </thead>
          <tbody>
            {{ range .Rows }}
            <tr>
              <td style="padding:10px 12px;font-size:12px;border-top:1px solid #eef0f6;">{{ .At }}</td>
              <td style="padding:10px 12px;font-size:12px;border-top:1px solid #eef0f6;">{{ .Account }}</td>
              <td style="padding:10px 12px;font-size:12px;border-top:1px solid #eef0f6;">{{ .Ticket }}</td>
              <td style="padding:10px 12px;font-size:12px;border-top:1px solid #eef0f6;">{{ .Order }}</td>
            </tr>
            {{ end }}
          </tbody>
        </table>
        <div style="margin-top:14px;color:#9ca3af;font-size:12px;">此邮件由系统自动发送</div>
      </div>
    </div>
  </body>
</html>
`))

type summaryRow struct {
	At      string
	Account string
	Ticket  string
	Order   string
}

func buildSummaryEmailBody(events []PurchaseEvent) (htmlBody string, textBody string, err error) {
	if len(events) == 0 {
		return "", "", errors.New("no events")
	}

	rows := make([]summaryRow, 0, len(events))
	var minAt, maxAt time.Time
	for i, evt := range events {
		at := time.Now()
		if evt.At > 0 {
			at = time.UnixMilli(evt.At)
		}
		if i == 0 || at.Before(minAt) {
			minAt = at
		}
		if i == 0 || at.After(maxAt) {
			maxAt = at
		}
		ticket := strings.TrimSpace(evt.TicketType)
		if evt.Quantity > 0 {
			ticket = fmt.Sprintf("%s × %d", ticket, evt.Quantity)
		}
		rows = append(rows, summaryRow{
			At:      at.Format("2006-01-02 15:04:05"),
			Account: safeText(evt.Email, evt.AccountID),
			Ticket:  strings.TrimSpace(ticket),
			Order:   safeText(evt.OrderNumber, "-"),
		})
	}

	data := struct {
		Total int
		Start string
		End   string
		Rows  []summaryRow
	}{
		Total: len(events),
		Start: minAt.Format("2006-01-02 15:04:05"),
		End:   maxAt.Format("2006-01-02 15:04:05"),
		Rows:  rows,
	}

	var buf bytes.Buffer
	if err := emailSummaryHTMLTpl.Execute(&buf, data); err != nil {
		return "", "", err
	}

	text := new(strings.Builder)
	text.WriteString("购票结果汇总\n")
	fmt.Fprintf(text, "共 %d 个账号，时间范围：%s ~ %s\n", len(events), data.Start, data.End)
	for _, row := range rows {
		fmt.Fprintf(text, "- %s | %s | %s | 订单 %s\n", row.At, row.Account, row.Ticket, row.Order)
	}
	return buf.String(), text.String(), nil
}

func safeText(prefer, fallback string) string {
	prefer = strings.TrimSpace(prefer)
	if prefer != "" {
		return prefer
	}
	return strings.TrimSpace(fallback)
}
