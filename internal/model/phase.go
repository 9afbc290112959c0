package model

type PhaseStatus string

const (
	PhaseSuccess   PhaseStatus = "success"
	PhaseRetryable PhaseStatus = "retryable"
	PhaseTerminal  PhaseStatus = "terminal"
)

// PhaseResult 单个阶段的结果，只被下一个阶段消费，不共享。
type PhaseResult struct {
	Status  PhaseStatus `json:"status"`
	Code    string      `json:"code,omitempty"`
	Payload string      `json:"payload,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	// Manual 表示需要人工介入（强认证、未知终态）。
	Manual bool `json:"manual,omitempty"`
}

func Succeeded(payload string) PhaseResult {
	return PhaseResult{Status: PhaseSuccess, Payload: payload}
}

func Failed(code, reason string) PhaseResult {
	return PhaseResult{Status: PhaseTerminal, Code: code, Reason: reason}
}

func ManualRequired(reason string) PhaseResult {
	return PhaseResult{Status: PhaseTerminal, Code: CodeManualIntervention, Reason: reason, Manual: true}
}

func (r PhaseResult) OK() bool { return r.Status == PhaseSuccess }
