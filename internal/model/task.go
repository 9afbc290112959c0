package model

type WorkerState struct {
	AccountID   string `json:"accountId"`
	WorkerID    string `json:"workerId,omitempty"`
	Email       string `json:"email,omitempty"`
	Phase       string `json:"phase"`
	Running     bool   `json:"running"`
	Proxy       string `json:"proxy,omitempty"`
	QueuePos    string `json:"queuePosition,omitempty"`
	LastError   string `json:"lastError,omitempty"`
	StartedAtMs int64  `json:"startedAtMs,omitempty"`
	UpdatedAtMs int64  `json:"updatedAtMs,omitempty"`
}

type EngineState struct {
	Running bool          `json:"running"`
	RunID   string        `json:"runId,omitempty"`
	Workers []WorkerState `json:"workers"`
}
