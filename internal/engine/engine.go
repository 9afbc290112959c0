// Package engine 编排一次运行：为每个账号分配独立会话，按并发上限调度 worker，
// 汇总结果并发送通知、保存报告。
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"ticket_engine/internal/browser"
	"ticket_engine/internal/captcha"
	"ticket_engine/internal/config"
	"ticket_engine/internal/flow"
	"ticket_engine/internal/locator"
	"ticket_engine/internal/logbus"
	"ticket_engine/internal/model"
	"ticket_engine/internal/notify"
	"ticket_engine/internal/page"
	"ticket_engine/internal/queue"
	"ticket_engine/internal/report"
	"ticket_engine/internal/site"
)

var (
	ErrAlreadyRunning = errors.New("a run is already in progress")
	ErrNoEventURL     = errors.New("event url is required")
)

// ReportStore 保存运行历史，sqlite.Store 实现了它。
type ReportStore interface {
	SaveReport(ctx context.Context, r model.RunReport) error
}

type Options struct {
	Launcher browser.Launcher
	// NewService 为每个 worker 创建独立的验证码服务客户端；为空时不处理验证码。
	NewService func() captcha.Service
	Notifier   notify.Notifier
	Store      ReportStore
	Bus        *logbus.Bus
	Site       *site.Catalogue
	ReportsDir string
	Console    io.Writer

	// Now/Sleep 为空时使用真实时钟。
	Now   func() time.Time
	Sleep func(context.Context, time.Duration) error
}

type Engine struct {
	launcher   browser.Launcher
	newService func() captcha.Service
	notifier   notify.Notifier
	store      ReportStore
	bus        *logbus.Bus
	site       *site.Catalogue
	reportsDir string
	console    io.Writer
	now        func() time.Time
	sleep      func(context.Context, time.Duration) error

	mu      sync.Mutex
	running bool
	runID   string
	order   []string
	states  map[string]*model.WorkerState
}

func New(opts Options) *Engine {
	c := opts.Site
	if c == nil {
		c = site.AllAccess()
	}
	return &Engine{
		launcher:   opts.Launcher,
		newService: opts.NewService,
		notifier:   opts.Notifier,
		store:      opts.Store,
		bus:        opts.Bus,
		site:       c,
		reportsDir: opts.ReportsDir,
		console:    opts.Console,
		now:        opts.Now,
		sleep:      opts.Sleep,
		states:     make(map[string]*model.WorkerState),
	}
}

// Run 为每个账号运行一次购票流程，等待全部结束后返回汇总。
// 账号级失败只体现在报告里；返回的 error 只表示运行无法开始或结果未能持久化。
func (e *Engine) Run(ctx context.Context, cfg config.RunConfig, accounts []model.Account, proxies []string) (model.RunReport, error) {
	if len(accounts) == 0 {
		return model.RunReport{}, config.ErrNoAccounts
	}
	if cfg.EventURL == "" {
		return model.RunReport{}, ErrNoEventURL
	}
	if e.launcher == nil {
		return model.RunReport{}, errors.New("browser launcher is required")
	}

	runID := uuid.NewString()
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return model.RunReport{}, ErrAlreadyRunning
	}
	e.running = true
	e.runID = runID
	e.order = e.order[:0]
	e.states = make(map[string]*model.WorkerState, len(accounts))
	for _, acc := range accounts {
		e.order = append(e.order, acc.ID)
		e.states[acc.ID] = &model.WorkerState{AccountID: acc.ID, Email: acc.MaskedEmail(), Phase: "pending"}
	}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	qps := cfg.LaunchQPS
	if qps <= 0 {
		qps = 0.5
	}
	burst := cfg.LaunchBurst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(qps), burst)
	inFlight := make(chan struct{}, maxWorkers)

	startedAt := time.Now()
	e.bus.Log("info", "运行开始", map[string]any{
		"runId":      runID,
		"accounts":   len(accounts),
		"proxies":    len(proxies),
		"maxWorkers": maxWorkers,
		"eventUrl":   cfg.EventURL,
	})

	outcomes := make([]model.AccountOutcome, len(accounts))
	var wg sync.WaitGroup
	for i, acc := range accounts {
		acc.Proxy = AssignProxy(acc, i, proxies)

		// 槽位和启动节奏都在调度循环里等待，账号按顺序排队。
		if err := acquire(ctx, inFlight, limiter); err != nil {
			outcomes[i] = notStarted(acc, err)
			e.finish(acc.ID, outcomes[i])
			continue
		}
		wg.Add(1)
		go func(i int, acc model.Account) {
			defer wg.Done()
			defer func() { <-inFlight }()
			outcomes[i] = e.runWorker(ctx, runID, cfg, acc)
		}(i, acc)
	}
	wg.Wait()

	rep := model.NewRunReport(runID, cfg.EventURL, startedAt, time.Now(), outcomes)
	e.bus.Publish("run_report", rep)
	e.bus.Log("info", "运行结束", map[string]any{
		"runId":   runID,
		"total":   rep.Total,
		"success": rep.Succeeded,
		"failure": rep.Failed,
		"manual":  rep.Manual,
	})

	// 取消运行不应吞掉已经成功的通知和报告。
	tail := context.WithoutCancel(ctx)
	e.notifySuccesses(tail, cfg, rep)
	return rep, e.persist(tail, rep)
}

func acquire(ctx context.Context, inFlight chan struct{}, limiter *rate.Limiter) error {
	select {
	case inFlight <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := limiter.Wait(ctx); err != nil {
		<-inFlight
		return err
	}
	return nil
}

// AssignProxy 账号自带代理优先，否则按账号序号轮询代理池。
func AssignProxy(acc model.Account, i int, proxies []string) string {
	if acc.Proxy != "" {
		return acc.Proxy
	}
	if len(proxies) == 0 {
		return ""
	}
	return proxies[i%len(proxies)]
}

// ProfileDir 每个账号固定的持久化用户目录。
func ProfileDir(root, accountID string) string {
	if root == "" {
		root = "profiles"
	}
	return filepath.Join(root, "account_"+accountID)
}

func notStarted(acc model.Account, err error) model.AccountOutcome {
	now := time.Now()
	return model.AccountOutcome{
		AccountID:  acc.ID,
		Email:      acc.Email,
		Proxy:      acc.Proxy,
		Error:      model.CodeWorkerFault,
		Reason:     "not started: " + err.Error(),
		StartedAt:  now,
		FinishedAt: now,
	}
}

// runWorker 运行单个账号；任何 panic 都转成 worker_fault，会话总会被关闭。
func (e *Engine) runWorker(ctx context.Context, runID string, cfg config.RunConfig, acc model.Account) (out model.AccountOutcome) {
	workerID := uuid.NewString()
	out = model.AccountOutcome{AccountID: acc.ID, Email: acc.Email, Proxy: acc.Proxy, StartedAt: time.Now()}

	log, err := logbus.OpenAccountLogger(acc.ID, logbus.AccountLoggerOptions{Dir: cfg.LogsDir, Bus: e.bus, Console: e.console})
	if err != nil {
		e.bus.Log("warn", "账号日志文件打开失败，仅输出到控制台", map[string]any{"accountId": acc.ID, "error": err.Error()})
		log, _ = logbus.OpenAccountLogger(acc.ID, logbus.AccountLoggerOptions{Bus: e.bus, Console: e.console})
	}
	defer func() { _ = log.Close() }()

	e.update(acc.ID, func(st *model.WorkerState) {
		st.WorkerID = workerID
		st.Proxy = acc.Proxy
		st.Running = true
		st.Phase = "launch"
		st.StartedAtMs = out.StartedAt.UnixMilli()
	})
	defer func() {
		if r := recover(); r != nil {
			out.Success = false
			out.OrderNumber = ""
			out.Error = model.CodeWorkerFault
			out.Reason = fmt.Sprint(r)
			out.RequiresManual = false
			out.FinishedAt = time.Now()
			log.Error("worker", "worker 异常退出", map[string]any{"panic": out.Reason})
		}
		e.finish(acc.ID, out)
	}()

	log.Info("worker", "worker 启动", map[string]any{"runId": runID, "workerId": workerID, "proxy": acc.Proxy})

	budget := cfg.WorkerBudget
	if budget <= 0 {
		budget = time.Hour
	}
	wctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	pg, err := e.launcher.Open(wctx, browser.Options{
		AccountID:      acc.ID,
		ProfileDir:     ProfileDir(cfg.ProfilesDir, acc.ID),
		Proxy:          acc.Proxy,
		Headless:       cfg.Headless,
		UserAgent:      cfg.UserAgent,
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
		Bin:            cfg.BrowserBin,
		Screenshots:    cfg.Screenshots,
		ScreenshotsDir: cfg.ScreenshotsDir,
	})
	if err != nil {
		log.Error("worker", "浏览器启动失败", map[string]any{"error": err.Error()})
		out.Error = model.CodeWorkerFault
		out.Reason = "launch: " + err.Error()
		out.FinishedAt = time.Now()
		return out
	}
	defer func() {
		if err := pg.Close(); err != nil {
			log.Warn("worker", "会话关闭失败", map[string]any{"error": err.Error()})
			return
		}
		log.Debug("worker", "会话已关闭", nil)
	}()

	wc := &WorkerContext{
		ID:      workerID,
		Account: acc,
		Session: pg,
		Solver:  e.newSolver(cfg, log),
		Log:     log,
	}
	out = e.machine(wc, cfg).Run(wctx)
	return out
}

// WorkerContext 单个 worker 独占的运行时资源，worker 结束时会话必定关闭。
type WorkerContext struct {
	ID      string
	Account model.Account
	Session page.Page
	Solver  *captcha.Solver
	Log     *logbus.AccountLogger
}

func (e *Engine) newSolver(cfg config.RunConfig, log *logbus.AccountLogger) *captcha.Solver {
	if e.newService == nil {
		return nil
	}
	solver := captcha.NewSolver(e.newService(), cfg.CaptchaPollInterval, cfg.CaptchaTimeout)
	solver.Now = e.now
	solver.Sleep = e.sleep
	solver.OnState = func(s captcha.State, fields map[string]any) {
		log.Debug(string(flow.PhaseAuthenticate), "captcha "+string(s), fields)
	}
	return solver
}

func (e *Engine) machine(wc *WorkerContext, cfg config.RunConfig) *flow.Machine {
	c := e.site
	acc, log := wc.Account, wc.Log
	loc := locator.New(wc.Session, log)
	if cfg.LocateTimeout > 0 {
		loc.AttemptTimeout = cfg.LocateTimeout
	}
	loc.Checkpoints = cfg.Screenshots

	gate := queue.New(loc, queue.Config{
		DomainPattern: c.QueueDomain,
		Frame:         c.QueueFrame,
		Position:      c.QueuePosition,
		CheckInterval: cfg.QueueCheckInterval,
		Timeout:       cfg.QueueTimeout,
	}, log)
	gate.Now = e.now
	gate.Sleep = e.sleep
	gate.OnPoll = func(r queue.Result) {
		e.update(acc.ID, func(st *model.WorkerState) { st.QueuePos = r.LastPosition })
	}

	return &flow.Machine{
		Page:    wc.Session,
		Locator: loc,
		Gate:    gate,
		Solver:  wc.Solver,
		Site:    c,
		Config:  cfg,
		Account: acc,
		Log:     log,
		Sleep:   e.sleep,
		OnPhase: func(p flow.Phase) {
			e.update(acc.ID, func(st *model.WorkerState) {
				st.Phase = string(p)
				if p != flow.PhaseWaitingRoom {
					st.QueuePos = ""
				}
			})
		},
	}
}

func (e *Engine) notifySuccesses(ctx context.Context, cfg config.RunConfig, rep model.RunReport) {
	if e.notifier == nil {
		return
	}
	for _, o := range rep.Outcomes {
		if !o.Success {
			continue
		}
		e.notifier.NotifyPurchase(ctx, notify.PurchaseEvent{
			At:          o.FinishedAt.UnixMilli(),
			RunID:       rep.RunID,
			AccountID:   o.AccountID,
			Email:       o.Email,
			OrderNumber: o.OrderNumber,
			EventURL:    cfg.EventURL,
			TicketType:  cfg.TicketType,
			Quantity:    cfg.TicketCount,
		})
	}
}

// persist 报告文档和历史库各写一份；失败不影响已经得到的报告。
func (e *Engine) persist(ctx context.Context, rep model.RunReport) error {
	var errs []error
	if e.reportsDir != "" {
		path, err := report.Write(e.reportsDir, rep)
		if err != nil {
			errs = append(errs, fmt.Errorf("write report: %w", err))
		} else {
			e.bus.Log("info", "报告已保存", map[string]any{"path": path})
		}
	}
	if e.store != nil {
		if err := e.store.SaveReport(ctx, rep); err != nil {
			errs = append(errs, fmt.Errorf("save run history: %w", err))
		}
	}
	for _, err := range errs {
		e.bus.Log("warn", "结果持久化失败", map[string]any{"error": err.Error()})
	}
	return errors.Join(errs...)
}
