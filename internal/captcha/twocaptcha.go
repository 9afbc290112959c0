package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"ticket_engine/internal/config"
	"ticket_engine/internal/logbus"
)

const notReady = "CAPCHA_NOT_READY"

// TwoCaptcha 2captcha 兼容服务（in.php / res.php，json=1）。
type TwoCaptcha struct {
	apiKey string
	client *resty.Client
}

func NewTwoCaptcha(cfg config.CaptchaConfig, bus *logbus.Bus) *TwoCaptcha {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.RequestTimeout()).
		SetRetryCount(cfg.Retry.Count).
		SetRetryWaitTime(cfg.Retry.Wait()).
		SetRetryMaxWaitTime(cfg.Retry.MaxWait()).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			if r == nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if bus != nil {
			bus.Log("debug", "captcha request", map[string]any{
				"method": req.Method,
				"url":    req.URL,
			})
		}
		return nil
	})

	return &TwoCaptcha{apiKey: cfg.APIKey, client: client}
}

func (s *TwoCaptcha) Name() string { return "2captcha" }

type envelope struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// 服务端即使 json=1 也可能返回 text/plain，这里统一手动解析正文。
func decode(resp *resty.Response) (envelope, error) {
	var env envelope
	if resp.StatusCode() >= 400 {
		return env, fmt.Errorf("http %d", resp.StatusCode())
	}
	body := resp.Body()
	if err := json.Unmarshal(body, &env); err != nil {
		raw := strings.TrimSpace(string(body))
		// 兼容非 JSON 的 "OK|<id>" 形式。
		if rest, ok := strings.CutPrefix(raw, "OK|"); ok {
			return envelope{Status: 1, Request: rest}, nil
		}
		return envelope{Request: raw}, nil
	}
	return env, nil
}

func (s *TwoCaptcha) Submit(ctx context.Context, job Job) (string, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"key":       s.apiKey,
			"method":    "userrecaptcha",
			"googlekey": job.SiteKey,
			"pageurl":   job.PageURL,
			"json":      "1",
		}).
		Post("/in.php")
	if err != nil {
		return "", err
	}
	env, err := decode(resp)
	if err != nil {
		return "", err
	}
	if env.Status != 1 || env.Request == "" {
		return "", &RejectedError{Status: env.Request}
	}
	return env.Request, nil
}

func (s *TwoCaptcha) Poll(ctx context.Context, jobID string) (PollResult, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":    s.apiKey,
			"action": "get",
			"id":     jobID,
			"json":   "1",
		}).
		Get("/res.php")
	if err != nil {
		return PollResult{}, err
	}
	env, err := decode(resp)
	if err != nil {
		return PollResult{}, err
	}
	switch {
	case env.Status == 1:
		return PollResult{State: PollSolved, Token: env.Request}, nil
	case env.Request == notReady:
		return PollResult{State: PollPending, Status: env.Request}, nil
	default:
		status := env.Request
		if status == "" {
			status = "status=" + strconv.Itoa(env.Status)
		}
		return PollResult{State: PollRejected, Status: status}, nil
	}
}
