// solve 单独跑一次打码流程，用来检查 API key 和服务可用性。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ticket_engine/internal/captcha"
	"ticket_engine/internal/config"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	envPath := flag.String("env", ".env", "path to .env file")
	siteKey := flag.String("sitekey", "", "reCAPTCHA site key")
	pageURL := flag.String("pageurl", "", "page the challenge was served on, defaults to event.loginUrl")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		log.Fatalf("load env: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *siteKey == "" {
		log.Fatalf("-sitekey is required")
	}
	if *pageURL == "" {
		*pageURL = cfg.Event.LoginURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	solver := captcha.NewSolver(captcha.NewTwoCaptcha(cfg.Captcha, nil), cfg.Timeouts.CaptchaPoll(), cfg.Timeouts.Captcha())
	solver.OnState = func(st captcha.State, fields map[string]any) {
		log.Printf("%s %v", st, fields)
	}

	sol, err := solver.Solve(ctx, *siteKey, *pageURL)
	if err != nil {
		var cerr *captcha.Error
		if errors.As(err, &cerr) {
			log.Fatalf("solve failed (%s): %v", cerr.State, err)
		}
		log.Fatalf("solve failed: %v", err)
	}
	log.Printf("solved job %s after %d polls in %s", sol.JobID, sol.Polls, sol.Elapsed)
	fmt.Println(sol.Token)
}
