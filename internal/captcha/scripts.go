package captcha

import (
	"context"
	"fmt"
	"strings"

	"ticket_engine/internal/page"
)

const siteKeyJS = `() => {
	const el = document.querySelector('[data-sitekey]');
	if (el && el.getAttribute('data-sitekey')) return el.getAttribute('data-sitekey');
	const frame = document.querySelector('iframe[src*="recaptcha"]');
	if (!frame) return '';
	try { return new URL(frame.src).searchParams.get('k') || ''; } catch (e) { return ''; }
}`

// 写入所有 g-recaptcha-response 槽位，并调用 ___grecaptcha_cfg.clients 中注册的全部回调。
const applyTokenJS = `(token) => {
	const out = { slots: 0, callbacks: 0, errors: 0 };
	document.querySelectorAll('[name="g-recaptcha-response"], #g-recaptcha-response, textarea[id^="g-recaptcha-response"]').forEach((el) => {
		el.value = token;
		el.innerHTML = token;
		out.slots++;
	});
	const seen = new Set();
	const walk = (obj, depth) => {
		if (!obj || typeof obj !== 'object' || depth > 4 || seen.has(obj)) return;
		seen.add(obj);
		for (const key of Object.keys(obj)) {
			const v = obj[key];
			if (key === 'callback') {
				let fn = v;
				if (typeof fn === 'string') fn = window[fn];
				if (typeof fn === 'function') {
					try { fn(token); out.callbacks++; } catch (e) { out.errors++; }
				}
			} else if (v && typeof v === 'object') {
				walk(v, depth + 1);
			}
		}
	};
	try {
		const cfg = window.___grecaptcha_cfg;
		if (cfg && cfg.clients) Object.values(cfg.clients).forEach((c) => walk(c, 0));
	} catch (e) { out.errors++; }
	return out;
}`

// ExtractSiteKey 读取页面上挑战组件的站点标识；没有挑战组件时返回空串。
func ExtractSiteKey(ctx context.Context, p page.Page) string {
	v, err := p.Eval(ctx, siteKeyJS)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

type ApplyResult struct {
	Slots     int
	Callbacks int
	Errors    int
	Err       error
}

func (r ApplyResult) String() string {
	return fmt.Sprintf("slots=%d callbacks=%d errors=%d", r.Slots, r.Callbacks, r.Errors)
}

// ApplyToken 尽力注入 token，结果仅用于日志，调用方不应据此判断成败。
func ApplyToken(ctx context.Context, p page.Page, token string) ApplyResult {
	v, err := p.Eval(ctx, applyTokenJS, token)
	if err != nil {
		return ApplyResult{Err: err}
	}
	m, _ := v.(map[string]any)
	return ApplyResult{
		Slots:     toInt(m["slots"]),
		Callbacks: toInt(m["callbacks"]),
		Errors:    toInt(m["errors"]),
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
