package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ticket_engine/internal/model"
)

type Config struct {
	Event    EventConfig    `yaml:"event"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Browser  BrowserConfig  `yaml:"browser"`
	Limits   LimitsConfig   `yaml:"limits"`
	Captcha  CaptchaConfig  `yaml:"captcha"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Accounts AccountsConfig `yaml:"accounts"`
	Storage  StorageConfig  `yaml:"storage"`
	Notify   NotifyConfig   `yaml:"notify"`
	Server   ServerConfig   `yaml:"server"`
}

type EventConfig struct {
	URL         string `yaml:"url"`
	LoginURL    string `yaml:"loginUrl"`
	TicketType  string `yaml:"ticketType"`
	TicketCount int    `yaml:"ticketCount"`
	// EventDate 多场次时优先选择的日期文案，留空则选第一个。
	EventDate string `yaml:"eventDate"`
}

type TimeoutsConfig struct {
	QueueMs        int `yaml:"queueMs"`
	QueueCheckMs   int `yaml:"queueCheckMs"`
	CaptchaMs      int `yaml:"captchaMs"`
	CaptchaPollMs  int `yaml:"captchaPollMs"`
	ActionMs       int `yaml:"actionMs"`
	LocateMs       int `yaml:"locateMs"`
	NavigationMs   int `yaml:"navigationMs"`
	SettleMs       int `yaml:"settleMs"`
	WorkerBudgetMs int `yaml:"workerBudgetMs"`
}

func (c TimeoutsConfig) Queue() time.Duration { return ms(c.QueueMs, 30*time.Minute) }

func (c TimeoutsConfig) QueueCheck() time.Duration { return ms(c.QueueCheckMs, 5*time.Second) }

func (c TimeoutsConfig) Captcha() time.Duration { return ms(c.CaptchaMs, 120*time.Second) }

func (c TimeoutsConfig) CaptchaPoll() time.Duration { return ms(c.CaptchaPollMs, 5*time.Second) }

func (c TimeoutsConfig) Action() time.Duration { return ms(c.ActionMs, 5*time.Second) }

func (c TimeoutsConfig) Locate() time.Duration { return ms(c.LocateMs, 1500*time.Millisecond) }

func (c TimeoutsConfig) Navigation() time.Duration { return ms(c.NavigationMs, 30*time.Second) }

func (c TimeoutsConfig) Settle() time.Duration { return ms(c.SettleMs, 3*time.Second) }

// WorkerBudget 单个账号整体的上限，需要大于排队超时。
func (c TimeoutsConfig) WorkerBudget() time.Duration {
	floor := 2*c.Queue() + 2*c.Captcha() + 10*time.Minute
	return ms(c.WorkerBudgetMs, floor)
}

type BrowserConfig struct {
	Headless       bool   `yaml:"headless"`
	Screenshots    *bool  `yaml:"screenshots"`
	ProfilesDir    string `yaml:"profilesDir"`
	ScreenshotsDir string `yaml:"screenshotsDir"`
	UserAgent      string `yaml:"userAgent"`
	ViewportWidth  int    `yaml:"viewportWidth"`
	ViewportHeight int    `yaml:"viewportHeight"`
	// Bin 指定浏览器可执行文件，留空则先找系统 Chrome，再自动下载。
	Bin string `yaml:"bin"`
}

func (c BrowserConfig) ScreenshotsEnabled() bool {
	return c.Screenshots == nil || *c.Screenshots
}

type LimitsConfig struct {
	MaxWorkers  int     `yaml:"maxWorkers"`
	MaxAccounts int     `yaml:"maxAccounts"`
	LaunchQPS   float64 `yaml:"launchQPS"`
	LaunchBurst int     `yaml:"launchBurst"`
}

type CaptchaConfig struct {
	BaseURL string          `yaml:"baseURL"`
	APIKey  string          `yaml:"apiKey"`
	Retry   CaptchaRetryCfg `yaml:"retry"`
	// RequestTimeoutMs 单次 HTTP 请求超时，不是整体求解超时。
	RequestTimeoutMs int `yaml:"requestTimeoutMs"`
}

type CaptchaRetryCfg struct {
	Count     int `yaml:"count"`
	WaitMs    int `yaml:"waitMs"`
	MaxWaitMs int `yaml:"maxWaitMs"`
}

func (c CaptchaConfig) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMs, 15*time.Second) }

func (c CaptchaRetryCfg) Wait() time.Duration { return ms(c.WaitMs, 300*time.Millisecond) }

func (c CaptchaRetryCfg) MaxWait() time.Duration { return ms(c.MaxWaitMs, 2*time.Second) }

type ProxyConfig struct {
	List []string `yaml:"list"`
}

type AccountsConfig struct {
	File string `yaml:"file"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath"`
	ReportsDir string `yaml:"reportsDir"`
	LogsDir    string `yaml:"logsDir"`
}

type NotifyConfig struct {
	Telegram model.TelegramSettings `yaml:"telegram"`
	Email    model.EmailSettings    `yaml:"email"`
	// EmailSummarySeconds 邮件合并窗口，0 表示每单立即发送。
	EmailSummarySeconds *int `yaml:"emailSummarySeconds"`
}

type ServerConfig struct {
	// Addr 监控服务监听地址，留空则不启动。
	Addr string     `yaml:"addr"`
	Cors CorsConfig `yaml:"cors"`
}

type CorsConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

func ms(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Millisecond
}

// LoadDotEnv 加载 .env（不存在时忽略），已有的环境变量不会被覆盖。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load 读取 YAML 配置（文件不存在时使用默认值），再叠加环境变量。
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, err
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, scale int, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n * scale
		return nil
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.EqualFold(strings.TrimSpace(v), "true") || strings.TrimSpace(v) == "1"
		}
	}

	str("EVENT_URL", &c.Event.URL)
	str("LOGIN_URL", &c.Event.LoginURL)
	str("TICKET_TYPE", &c.Event.TicketType)
	str("CAPTCHA_API_KEY", &c.Captcha.APIKey)
	str("CAPTCHA_BASE_URL", &c.Captcha.BaseURL)
	str("ACCOUNTS_FILE", &c.Accounts.File)
	str("TELEGRAM_BOT_TOKEN", &c.Notify.Telegram.BotToken)
	str("TELEGRAM_CHAT_ID", &c.Notify.Telegram.ChatID)
	flag("HEADLESS", &c.Browser.Headless)
	if v, ok := lookup("DEBUG_SCREENSHOTS"); ok && strings.TrimSpace(v) != "" {
		var on bool
		flag("DEBUG_SCREENSHOTS", &on)
		c.Browser.Screenshots = &on
	}

	// 与旧版 .env 保持一致：间隔/超时以秒为单位。
	if err := num("TICKET_COUNT", 1, &c.Event.TicketCount); err != nil {
		return err
	}
	if err := num("MAX_ACCOUNTS", 1, &c.Limits.MaxAccounts); err != nil {
		return err
	}
	if err := num("MAX_WORKERS", 1, &c.Limits.MaxWorkers); err != nil {
		return err
	}
	if err := num("QUEUE_CHECK_INTERVAL", 1000, &c.Timeouts.QueueCheckMs); err != nil {
		return err
	}
	if err := num("QUEUE_TIMEOUT", 1000, &c.Timeouts.QueueMs); err != nil {
		return err
	}
	if err := num("CAPTCHA_TIMEOUT", 1000, &c.Timeouts.CaptchaMs); err != nil {
		return err
	}

	if v, ok := lookup("PROXIES"); ok && strings.TrimSpace(v) != "" {
		c.Proxy.List = SplitList(v)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Event.LoginURL == "" {
		c.Event.LoginURL = "https://www.allaccess.com.ar/login"
	}
	if c.Event.TicketType == "" {
		c.Event.TicketType = "Campo General"
	}
	if c.Event.TicketCount <= 0 {
		c.Event.TicketCount = 2
	}
	if c.Browser.ProfilesDir == "" {
		c.Browser.ProfilesDir = "./profiles"
	}
	if c.Browser.ScreenshotsDir == "" {
		c.Browser.ScreenshotsDir = "./screenshots"
	}
	if c.Browser.ViewportWidth <= 0 {
		c.Browser.ViewportWidth = 1920
	}
	if c.Browser.ViewportHeight <= 0 {
		c.Browser.ViewportHeight = 1080
	}
	if c.Limits.MaxWorkers <= 0 {
		c.Limits.MaxWorkers = 2
	}
	if c.Limits.LaunchQPS <= 0 {
		c.Limits.LaunchQPS = 0.5
	}
	if c.Limits.LaunchBurst <= 0 {
		c.Limits.LaunchBurst = 1
	}
	if c.Captcha.BaseURL == "" {
		c.Captcha.BaseURL = "http://2captcha.com"
	}
	if c.Captcha.Retry.Count < 0 {
		c.Captcha.Retry.Count = 0
	}
	if c.Accounts.File == "" {
		c.Accounts.File = "accounts.json"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/ticket_engine.db"
	}
	if c.Storage.ReportsDir == "" {
		c.Storage.ReportsDir = "./reports"
	}
	if c.Storage.LogsDir == "" {
		c.Storage.LogsDir = "./logs"
	}
}

func (c Config) validate() error {
	if c.Event.URL == "" {
		return errors.New("event.url is required (EVENT_URL)")
	}
	if c.Captcha.APIKey == "" {
		return errors.New("captcha.apiKey is required (CAPTCHA_API_KEY)")
	}
	if c.Event.TicketCount > 10 {
		return fmt.Errorf("event.ticketCount %d exceeds 10", c.Event.TicketCount)
	}
	if c.Timeouts.Queue() < c.Timeouts.QueueCheck() {
		return errors.New("timeouts.queueMs must not be shorter than timeouts.queueCheckMs")
	}
	return nil
}

// SplitList 拆分逗号分隔的列表，去掉空项。
func SplitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
