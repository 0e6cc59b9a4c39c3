// Command slotwatchd runs the slotwatch HTTP server: a browser-driven
// availability checker for the visa scheduling portal.
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	_ "github.com/otarkhan/slotwatch/docs/swagger"
	"github.com/otarkhan/slotwatch/internal/browser"
	"github.com/otarkhan/slotwatch/internal/checker"
	"github.com/otarkhan/slotwatch/internal/fetcher"
	"github.com/otarkhan/slotwatch/internal/history"
	"github.com/otarkhan/slotwatch/internal/logging"
	"github.com/otarkhan/slotwatch/internal/probe"
	"github.com/otarkhan/slotwatch/internal/server"
	"github.com/otarkhan/slotwatch/internal/session"
	"github.com/otarkhan/slotwatch/internal/slots"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	logger := logging.NewStdoutLogger("slotwatchd")

	apiSecret := os.Getenv("API_SECRET")
	if apiSecret == "" {
		log.Fatal("API_SECRET must be set")
	}

	browserCfg := browser.DefaultConfig()
	if env("HEADLESS", "true") == "false" {
		browserCfg.Headless = false
	}

	sessionCfg := session.DefaultConfig()
	if v := os.Getenv("LOGIN_URL"); v != "" {
		sessionCfg.LoginURL = v
	}

	fetcherCfg := fetcher.DefaultConfig()
	if v := os.Getenv("SCHEDULE_URL"); v != "" {
		fetcherCfg.ScheduleURL = v
	}

	storageRoot := env("STORAGE_ROOT", "./storage")
	if err := os.MkdirAll(storageRoot, 0o755); err != nil {
		log.Fatalf("Failed to create storage root: %v", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(storageRoot, "history.db"))
	if err != nil {
		log.Fatalf("Failed to open history database: %v", err)
	}
	store, err := history.NewStore(db, logger)
	if err != nil {
		log.Fatalf("Failed to initialize history store: %v", err)
	}
	defer store.Close()

	chk := checker.New(
		browser.NewChromeLauncher(browserCfg, logger),
		session.New(sessionCfg, logger),
		fetcher.New(fetcherCfg, logger),
		slots.New(logger),
		logger,
	)

	prober, err := probe.New(sessionCfg.LoginURL, browserCfg.UserAgent, logger)
	if err != nil {
		log.Fatalf("Failed to initialize portal prober: %v", err)
	}

	srv := server.NewServer(server.Config{
		ListenAddr: ":" + env("PORT", "3000"),
		APISecret:  apiSecret,
	}, chk, store, prober, logger)

	httpSrv := srv.HTTPServer()
	go func() {
		logger.Info("server starting", logging.Field{Key: "addr", Value: httpSrv.Addr})
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
}
