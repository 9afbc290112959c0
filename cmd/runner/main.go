package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ticket_engine/internal/browser"
	"ticket_engine/internal/captcha"
	"ticket_engine/internal/config"
	"ticket_engine/internal/engine"
	"ticket_engine/internal/httpapi"
	"ticket_engine/internal/logbus"
	"ticket_engine/internal/model"
	"ticket_engine/internal/notify"
	"ticket_engine/internal/report"
	"ticket_engine/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	envPath := flag.String("env", ".env", "path to .env file")
	monitorAddr := flag.String("monitor", "", "monitor listen address, overrides server.addr")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		log.Fatalf("load env: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	accounts, err := config.LoadAccounts(cfg.Accounts.File, os.Getenv("ACCOUNTS"), cfg.Limits.MaxAccounts)
	if err != nil {
		log.Fatalf("load accounts: %v", err)
	}
	if *monitorAddr != "" {
		cfg.Server.Addr = *monitorAddr
	}

	bus := logbus.New(1000)
	stopEcho := echoProcessLogs(bus)
	defer stopEcho()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	notifiers := notify.Multi{notify.Console{Bus: bus}}
	if cfg.Notify.Telegram.Enabled() {
		notifiers = append(notifiers, notify.NewTelegram(notify.TelegramOptions{Settings: cfg.Notify.Telegram, Bus: bus}))
	}
	var mailer *notify.EmailNotifier
	if cfg.Notify.Email.Enabled {
		mailer = notify.NewEmailNotifier(notify.EmailOptions{
			Settings:      cfg.Notify.Email,
			Bus:           bus,
			SummaryWindow: notify.SummaryWindow(cfg.Notify.EmailSummarySeconds),
		})
		notifiers = append(notifiers, mailer)
	}

	eng := engine.New(engine.Options{
		Launcher:   browser.NewLauncher(),
		NewService: func() captcha.Service { return captcha.NewTwoCaptcha(cfg.Captcha, bus) },
		Notifier:   notifiers,
		Store:      store,
		Bus:        bus,
		ReportsDir: cfg.Storage.ReportsDir,
		Console:    os.Stdout,
	})

	var server *http.Server
	if cfg.Server.Addr != "" {
		api := httpapi.New(httpapi.Options{Cfg: cfg.Server, Bus: bus, Engine: eng, History: store})
		server = &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				bus.Log("error", "monitor server error", map[string]any{"error": err.Error()})
			}
		}()
		bus.Log("info", "monitor listening", map[string]any{"addr": cfg.Server.Addr})
	}

	rep, runErr := eng.Run(ctx, cfg.RunConfig(), accounts, cfg.Proxy.List)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if mailer != nil {
		_ = mailer.Close(shutdownCtx)
	}
	if server != nil {
		_ = server.Shutdown(shutdownCtx)
	}

	if rep.RunID != "" {
		for _, o := range rep.Outcomes {
			line := fmt.Sprintf("  [%s] %s", o.AccountID, o.Email)
			if o.Success {
				line += " order=" + o.OrderNumber
			} else {
				line += " error=" + o.Error
				if o.Reason != "" {
					line += " reason=" + o.Reason
				}
			}
			fmt.Println(line)
		}
		fmt.Println(report.Summary(rep))
	}
	if runErr != nil {
		log.Printf("run: %v", runErr)
	}
	if code := exitCode(rep, runErr); code != 0 {
		// os.Exit 不会执行 defer，先手动收尾。
		stopEcho()
		_ = store.Close()
		stop()
		os.Exit(code)
	}
}

// exitCode 运行出错或没有任何账号成功时返回 1。
func exitCode(rep model.RunReport, runErr error) int {
	if runErr != nil || rep.Succeeded == 0 {
		return 1
	}
	return 0
}

// echoProcessLogs 把不属于具体账号的总线日志打印到控制台，账号日志由 AccountLogger 自己输出。
func echoProcessLogs(bus *logbus.Bus) func() {
	ch, cancel := bus.Subscribe(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ch {
			d, ok := msg.Data.(logbus.LogData)
			if !ok || d.AccountID != "" || d.Level == "debug" {
				continue
			}
			line := fmt.Sprintf("[run] %s: %s", strings.ToUpper(d.Level), d.Msg)
			if len(d.Fields) > 0 {
				line += fmt.Sprintf(" %v", d.Fields)
			}
			fmt.Println(line)
		}
	}()
	var once bool
	return func() {
		if once {
			return
		}
		once = true
		cancel()
		<-done
	}
}
