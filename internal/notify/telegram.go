package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"ticket_engine/internal/logbus"
	"ticket_engine/internal/model"
)

const DefaultTelegramBaseURL = "https://api.telegram.org"

// Telegram 通过 Bot API 的 sendMessage 推送成功消息。
type Telegram struct {
	chatID string
	token  string
	bus    *logbus.Bus
	client *resty.Client
}

type TelegramOptions struct {
	Settings model.TelegramSettings
	Bus      *logbus.Bus
	BaseURL  string
	Timeout  time.Duration
}

func NewTelegram(opts TelegramOptions) *Telegram {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultTelegramBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return true
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		})
	return &Telegram{
		chatID: strings.TrimSpace(opts.Settings.ChatID),
		token:  strings.TrimSpace(opts.Settings.BotToken),
		bus:    opts.Bus,
		client: client,
	}
}

type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send 发送一条纯文本消息。
func (t *Telegram) Send(ctx context.Context, text string) error {
	if t.token == "" || t.chatID == "" {
		return fmt.Errorf("telegram not configured")
	}
	var reply telegramReply
	resp, err := t.client.R().
		SetContext(ctx).
		SetPathParam("token", t.token).
		SetBody(map[string]any{"chat_id": t.chatID, "text": text}).
		SetResult(&reply).
		SetError(&reply).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return err
	}
	if resp.IsError() || !reply.OK {
		desc := strings.TrimSpace(reply.Description)
		if desc == "" {
			desc = resp.Status()
		}
		return fmt.Errorf("telegram sendMessage: %s", desc)
	}
	return nil
}

func (t *Telegram) NotifyPurchase(ctx context.Context, evt PurchaseEvent) {
	if err := t.Send(ctx, SuccessText(evt)); err != nil {
		t.bus.Log("warn", "Telegram 通知失败", map[string]any{
			"accountId": evt.AccountID,
			"error":     err.Error(),
		})
	}
}
