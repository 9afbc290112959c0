package engine

import (
	"time"

	"ticket_engine/internal/flow"
	"ticket_engine/internal/model"
)

// State 当前运行中每个账号的实时阶段，按账号顺序返回。
func (e *Engine) State() model.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := model.EngineState{Running: e.running, RunID: e.runID, Workers: []model.WorkerState{}}
	for _, id := range e.order {
		if st := e.states[id]; st != nil {
			out.Workers = append(out.Workers, *st)
		}
	}
	return out
}

func (e *Engine) update(accountID string, fn func(st *model.WorkerState)) {
	e.mu.Lock()
	st := e.states[accountID]
	if st == nil {
		e.mu.Unlock()
		return
	}
	fn(st)
	st.UpdatedAtMs = time.Now().UnixMilli()
	snapshot := *st
	e.mu.Unlock()
	e.bus.Publish("worker_state", snapshot)
}

func (e *Engine) finish(accountID string, o model.AccountOutcome) {
	e.update(accountID, func(st *model.WorkerState) {
		st.Running = false
		st.Phase = string(flow.PhaseDone)
		st.QueuePos = ""
		st.LastError = ""
		if !o.Success {
			st.LastError = o.Error
		}
	})
}
