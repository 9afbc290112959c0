package model

import "time"

const (
	CodeElementNotFound           = "element_not_found"
	CodeQuantityControlNotFound   = "quantity_control_not_found"
	CodeSubmissionRejected        = "submission_rejected"
	CodeSolveRejected             = "solve_rejected"
	CodeChallengeTimeout          = "challenge_timeout"
	CodeQueueTimeout              = "queue_timeout"
	CodeQueueTimeoutAfterLogin    = "queue_timeout_after_login"
	CodeLoginFailed               = "login_failed"
	CodeTicketSelectionFailed     = "ticket_selection_failed"
	CodeCheckoutPreparationFailed = "checkout_preparation_failed"
	CodePurchaseFailed            = "purchase_failed"
	CodeManualIntervention        = "manual_intervention_required"
	CodeNavigationFailed          = "navigation_failed"
	CodeWorkerFault               = "worker_fault"
)

const (
	ReasonStrongAuth   = "strong_auth"
	ReasonUnknownState = "unknown_state"
)

// AccountOutcome 每个账号每次运行恰好产生一条。
type AccountOutcome struct {
	AccountID      string    `json:"account_id"`
	Email          string    `json:"email"`
	Success        bool      `json:"success"`
	OrderNumber    string    `json:"order_number,omitempty"`
	Error          string    `json:"error,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	RequiresManual bool      `json:"requires_manual,omitempty"`
	Proxy          string    `json:"proxy,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

func (o AccountOutcome) Duration() time.Duration {
	if o.StartedAt.IsZero() || o.FinishedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

type RunReport struct {
	RunID      string           `json:"run_id"`
	EventURL   string           `json:"event_url,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Total      int              `json:"total"`
	Succeeded  int              `json:"success"`
	Failed     int              `json:"failure"`
	Manual     int              `json:"manual"`
	Outcomes   []AccountOutcome `json:"outcomes"`
}

// NewRunReport 汇总所有账号结果；只在全部 worker 结束后调用一次。
func NewRunReport(runID, eventURL string, startedAt, finishedAt time.Time, outcomes []AccountOutcome) RunReport {
	r := RunReport{
		RunID:      runID,
		EventURL:   eventURL,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Total:      len(outcomes),
		Outcomes:   append([]AccountOutcome(nil), outcomes...),
	}
	for _, o := range outcomes {
		if o.Success {
			r.Succeeded++
			continue
		}
		r.Failed++
		if o.RequiresManual {
			r.Manual++
		}
	}
	return r
}
