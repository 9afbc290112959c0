package config

import "time"

// RunConfig 一次运行的只读参数，启动时构造一次后按值传给编排器和每个 worker。
type RunConfig struct {
	EventURL    string
	LoginURL    string
	TicketType  string
	TicketCount int
	EventDate   string

	QueueTimeout        time.Duration
	QueueCheckInterval  time.Duration
	CaptchaTimeout      time.Duration
	CaptchaPollInterval time.Duration
	ActionTimeout       time.Duration
	LocateTimeout       time.Duration
	NavigationTimeout   time.Duration
	SettleDelay         time.Duration
	WorkerBudget        time.Duration

	MaxWorkers  int
	LaunchQPS   float64
	LaunchBurst int

	Headless       bool
	Screenshots    bool
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	BrowserBin     string

	ProfilesDir    string
	ScreenshotsDir string
	LogsDir        string
}

func (c Config) RunConfig() RunConfig {
	return RunConfig{
		EventURL:    c.Event.URL,
		LoginURL:    c.Event.LoginURL,
		TicketType:  c.Event.TicketType,
		TicketCount: c.Event.TicketCount,
		EventDate:   c.Event.EventDate,

		QueueTimeout:        c.Timeouts.Queue(),
		QueueCheckInterval:  c.Timeouts.QueueCheck(),
		CaptchaTimeout:      c.Timeouts.Captcha(),
		CaptchaPollInterval: c.Timeouts.CaptchaPoll(),
		ActionTimeout:       c.Timeouts.Action(),
		LocateTimeout:       c.Timeouts.Locate(),
		NavigationTimeout:   c.Timeouts.Navigation(),
		SettleDelay:         c.Timeouts.Settle(),
		WorkerBudget:        c.Timeouts.WorkerBudget(),

		MaxWorkers:  c.Limits.MaxWorkers,
		LaunchQPS:   c.Limits.LaunchQPS,
		LaunchBurst: c.Limits.LaunchBurst,

		Headless:       c.Browser.Headless,
		Screenshots:    c.Browser.ScreenshotsEnabled(),
		UserAgent:      c.Browser.UserAgent,
		ViewportWidth:  c.Browser.ViewportWidth,
		ViewportHeight: c.Browser.ViewportHeight,
		BrowserBin:     c.Browser.Bin,

		ProfilesDir:    c.Browser.ProfilesDir,
		ScreenshotsDir: c.Browser.ScreenshotsDir,
		LogsDir:        c.Storage.LogsDir,
	}
}
