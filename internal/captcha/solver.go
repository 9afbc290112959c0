// Package captcha 对接第三方打码服务：提交挑战、轮询结果、把 token 注入页面。
package captcha

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket_engine/internal/utils"
)

var (
	ErrSubmissionRejected = errors.New("submission rejected")
	ErrSolveRejected      = errors.New("solve rejected")
	ErrChallengeTimeout   = errors.New("challenge timeout")
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 120 * time.Second
)

type State string

const (
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateSolved    State = "solved"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
)

type Job struct {
	SiteKey string
	PageURL string
}

type PollState int

const (
	PollPending PollState = iota
	PollSolved
	PollRejected
)

type PollResult struct {
	State  PollState
	Token  string
	Status string
}

// Service 打码服务的请求/响应协议。Submit 被服务端拒绝时返回 *RejectedError。
type Service interface {
	Submit(ctx context.Context, job Job) (string, error)
	Poll(ctx context.Context, jobID string) (PollResult, error)
}

type RejectedError struct {
	Status string
}

func (e *RejectedError) Error() string { return "service refused job: " + e.Status }

// Error 求解失败；Kind 为 ErrSubmissionRejected / ErrSolveRejected / ErrChallengeTimeout 之一。
type Error struct {
	State State
	Kind  error
	JobID string
	Polls int
	Cause error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.JobID != "" {
		msg += " (job " + e.JobID + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Cause }

type Solution struct {
	Token   string
	JobID   string
	Polls   int
	Elapsed time.Duration
}

// Solver 单个 worker 独占的打码客户端。
type Solver struct {
	Service  Service
	Interval time.Duration
	Timeout  time.Duration

	OnState func(State, map[string]any)

	Now   func() time.Time
	Sleep func(context.Context, time.Duration) error
}

func NewSolver(svc Service, interval, timeout time.Duration) *Solver {
	return &Solver{Service: svc, Interval: interval, Timeout: timeout}
}

func (s *Solver) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Solver) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	return utils.Sleep(ctx, d)
}

func (s *Solver) emit(st State, fields map[string]any) {
	if s.OnState != nil {
		s.OnState(st, fields)
	}
}

// Solve 提交后按固定间隔轮询，直到拿到 token、被拒绝或预算耗尽。
// 轮询时的传输错误视为暂时性错误，继续等待下一轮。
func (s *Solver) Solve(ctx context.Context, siteKey, pageURL string) (Solution, error) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if s.Service == nil {
		return Solution{}, &Error{State: StateFailed, Kind: ErrSubmissionRejected, Cause: errors.New("no captcha service configured")}
	}

	start := s.now()
	jobID, err := s.Service.Submit(ctx, Job{SiteKey: siteKey, PageURL: pageURL})
	if err != nil {
		s.emit(StateFailed, map[string]any{"error": err.Error()})
		return Solution{}, &Error{State: StateFailed, Kind: ErrSubmissionRejected, Cause: err}
	}
	s.emit(StateSubmitted, map[string]any{"jobId": jobID})

	polls := 0
	for {
		if s.now().Sub(start)+interval > timeout {
			s.emit(StateTimedOut, map[string]any{"jobId": jobID, "polls": polls})
			return Solution{}, &Error{State: StateTimedOut, Kind: ErrChallengeTimeout, JobID: jobID, Polls: polls}
		}
		if err := s.sleep(ctx, interval); err != nil {
			s.emit(StateTimedOut, map[string]any{"jobId": jobID, "polls": polls})
			return Solution{}, &Error{State: StateTimedOut, Kind: ErrChallengeTimeout, JobID: jobID, Polls: polls, Cause: err}
		}

		polls++
		res, err := s.Service.Poll(ctx, jobID)
		if err != nil {
			s.emit(StatePolling, map[string]any{"jobId": jobID, "polls": polls, "error": err.Error()})
			continue
		}
		switch res.State {
		case PollPending:
			s.emit(StatePolling, map[string]any{"jobId": jobID, "polls": polls})
		case PollSolved:
			elapsed := s.now().Sub(start)
			s.emit(StateSolved, map[string]any{"jobId": jobID, "polls": polls, "elapsedMs": elapsed.Milliseconds()})
			return Solution{Token: res.Token, JobID: jobID, Polls: polls, Elapsed: elapsed}, nil
		default:
			s.emit(StateFailed, map[string]any{"jobId": jobID, "status": res.Status})
			return Solution{}, &Error{State: StateFailed, Kind: ErrSolveRejected, JobID: jobID, Polls: polls, Cause: fmt.Errorf("status %s", res.Status)}
		}
	}
}
