package notify

import (
	"context"
	"strings"

	"ticket_engine/internal/logbus"
)

// PurchaseEvent 一个账号购票成功后发出的通知。
type PurchaseEvent struct {
	At          int64  `json:"atMs"`
	RunID       string `json:"runId,omitempty"`
	AccountID   string `json:"accountId"`
	Email       string `json:"email,omitempty"`
	OrderNumber string `json:"orderNumber,omitempty"`
	EventURL    string `json:"eventUrl,omitempty"`
	TicketType  string `json:"ticketType,omitempty"`
	Quantity    int    `json:"quantity,omitempty"`
}

// Notifier 通知发送失败只记录日志，不影响购票结果。
type Notifier interface {
	NotifyPurchase(ctx context.Context, evt PurchaseEvent)
}

// Multi 依次转发给每个通知渠道，nil 项跳过。
type Multi []Notifier

func (m Multi) NotifyPurchase(ctx context.Context, evt PurchaseEvent) {
	for _, n := range m {
		if n != nil {
			n.NotifyPurchase(ctx, evt)
		}
	}
}

// Console 把成功事件写到总线，控制台和监控页都能看到。
type Console struct {
	Bus *logbus.Bus
}

func (c Console) NotifyPurchase(_ context.Context, evt PurchaseEvent) {
	c.Bus.Publish("purchase", evt)
	c.Bus.Log("info", SuccessText(evt), map[string]any{
		"accountId":   evt.AccountID,
		"orderNumber": evt.OrderNumber,
	})
}

// SuccessText 各渠道共用的一行成功文案。
func SuccessText(evt PurchaseEvent) string {
	who := strings.TrimSpace(evt.Email)
	if who == "" {
		who = evt.AccountID
	}
	text := "✅ Account " + who + " succeeded!"
	if order := strings.TrimSpace(evt.OrderNumber); order != "" {
		text += " Order: " + order
	}
	return text
}
