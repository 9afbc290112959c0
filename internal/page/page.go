// Package page 定义页面交互能力的抽象：导航、查找元素、执行动作、执行脚本、截图。
// 具体实现见 internal/browser（go-rod），测试中使用内存实现。
package page

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	// KindCSS 普通 CSS 选择器。
	KindCSS Kind = "css"
	// KindText 在 Selector 范围内按文本精确包含匹配（不区分大小写）。
	KindText Kind = "text"
	// KindTextMatch 在 Selector 范围内按正则匹配文本（JS 正则语法）。
	KindTextMatch Kind = "text_match"
	KindXPath     Kind = "xpath"
)

// Descriptor 一条声明式的元素定位规则。
type Descriptor struct {
	Kind     Kind   `json:"kind" yaml:"kind"`
	Selector string `json:"selector,omitempty" yaml:"selector"`
	Value    string `json:"value,omitempty" yaml:"value"`
}

func CSS(selector string) Descriptor { return Descriptor{Kind: KindCSS, Selector: selector} }

func Text(selector, text string) Descriptor {
	return Descriptor{Kind: KindText, Selector: selector, Value: text}
}

func TextMatch(selector, pattern string) Descriptor {
	return Descriptor{Kind: KindTextMatch, Selector: selector, Value: pattern}
}

func XPath(expr string) Descriptor { return Descriptor{Kind: KindXPath, Selector: expr} }

func (d Descriptor) String() string {
	switch d.Kind {
	case KindCSS, KindXPath:
		return fmt.Sprintf("%s(%s)", d.Kind, d.Selector)
	default:
		return fmt.Sprintf("%s(%s, %q)", d.Kind, d.Selector, d.Value)
	}
}

type Action string

const (
	ActionClick  Action = "click"
	ActionFill   Action = "fill"
	ActionText   Action = "read_text"
	ActionSelect Action = "select"
)

type WaitPolicy string

const (
	WaitLoad        WaitPolicy = "load"
	WaitNetworkIdle WaitPolicy = "networkidle"
	WaitNone        WaitPolicy = "none"
)

// Element 定位得到的具体元素句柄。
type Element interface {
	TagName(ctx context.Context) (string, error)
	Visible(ctx context.Context) bool
}

var ErrNoElement = errors.New("element not found")

// Page 单个浏览会话的页面交互能力。Locate 在 ctx 截止前等待元素出现，
// 未找到时返回 (nil, false, nil)；只有会话本身出错才返回 error。
type Page interface {
	Navigate(ctx context.Context, url string, wait WaitPolicy, timeout time.Duration) error
	Locate(ctx context.Context, d Descriptor) (Element, bool, error)
	Act(ctx context.Context, el Element, action Action, value string) (string, error)
	ReadText(ctx context.Context, d Descriptor) (string, bool)
	Eval(ctx context.Context, js string, args ...any) (any, error)
	// Capture 尽力截图，返回文件路径；失败时返回 false，不影响调用方。
	Capture(ctx context.Context, label string) (string, bool)
	CurrentURL() string
	// WaitSettled 等待页面网络空闲（点击提交后使用），超时不是错误。
	WaitSettled(ctx context.Context, timeout time.Duration)
	Close() error
}
