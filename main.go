package main

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seatpredictor/seatweb/pkg/apiclient"
	"github.com/seatpredictor/seatweb/pkg/config"
	"github.com/seatpredictor/seatweb/pkg/handlers"
	"github.com/seatpredictor/seatweb/pkg/logging"
	"github.com/seatpredictor/seatweb/pkg/poller"
	"github.com/seatpredictor/seatweb/pkg/security"
	"github.com/seatpredictor/seatweb/pkg/session"
	"github.com/seatpredictor/seatweb/pkg/wizard"
)

func main() {
	logging.InitLogger()

	cfg, err := config.Load()
	if err != nil {
		logging.LogCritical("Configuration error", err)
		os.Exit(1)
	}

	templates, err := template.ParseGlob(cfg.TemplateGlob)
	if err != nil {
		logging.LogCritical("Template loading failed", err, "glob", cfg.TemplateGlob)
		os.Exit(1)
	}

	sessions := session.NewCookieStore(
		[]byte(cfg.SessionHashKey), blockKey(cfg.SessionBlockKey), cfg.IsProduction())
	flash := session.NewFlashStore(
		[]byte(cfg.SessionHashKey), blockKey(cfg.SessionBlockKey), cfg.IsProduction())

	client := apiclient.New(cfg.APIBaseURL, cfg.APITimeout)
	wizards := wizard.NewStateStore()
	adminPoller := poller.New(client, cfg.AdminUser, cfg.AdminPass, cfg.AdminPollEvery)

	handler := handlers.NewHandler(templates, sessions, flash, client, wizards, adminPoller)

	opts := handlers.RouterOptions{
		RateLimiter: security.NewRateLimiter(),
		Secure:      cfg.IsProduction(),
	}
	if cfg.IsProduction() {
		opts.CSRFKey = []byte(cfg.CSRFKey)
	}
	router := handlers.NewRouter(handler, opts)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logging.LogInfo("Server starting",
			"addr", cfg.ListenAddr,
			"api_base_url", cfg.APIBaseURL,
			"env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.LogCritical("Server failed", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logging.LogInfo("Shutting down")
	adminPoller.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logging.LogError("Graceful shutdown failed", err)
	}
	logging.LogSystemStats()
}

func blockKey(key string) []byte {
	if key == "" {
		return nil
	}
	return []byte(key)
}
