package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"vinyl_radar/config"
	"vinyl_radar/httputil"
	"vinyl_radar/logging"
	"vinyl_radar/market"
	"vinyl_radar/notify"
	"vinyl_radar/scheduler"
	"vinyl_radar/services"
	"vinyl_radar/storage"
)

var (
	scanNow = flag.Bool("scan", false, "Run one reconciliation pass and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("daemon.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting vinyl_radar...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Loaded %d source configs", len(cfg.Sources))
	for id, source := range cfg.Sources {
		log.Printf("  - %s (%s)", source.Name, id)
	}

	clients := httputil.NewClients(&cfg.Proxy)

	ctx := context.Background()

	var store storage.Store
	if cfg.DatabaseURL != "" {
		pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		store = pgStore
		log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.DatabaseURL))
	} else {
		sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			log.Fatalf("Failed to open SQLite: %v", err)
		}
		store = sqliteStore
		log.Printf("SQLite database: %s", cfg.DBPath)
	}
	defer store.Close()

	var notifier notify.Notifier
	if cfg.Webhook.URL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Webhook.URL, clients.Webhook)
		log.Println("Webhook notifier configured")
	} else {
		notifier = notify.NewLogNotifier()
		log.Println("No webhook configured, alerts go to the log")
	}

	reconciler := services.NewReconciler(store)
	orchestrator := market.NewOrchestrator(cfg, store, reconciler, notifier, clients.Market)

	if err := orchestrator.SeedPreferences(ctx); err != nil {
		log.Fatalf("Failed to seed preferences: %v", err)
	}

	if *scanNow {
		log.Println("Running pass...")
		if err := orchestrator.RunPass(ctx); err != nil {
			log.Fatalf("Pass failed: %v", err)
		}
		log.Println("Pass complete!")
		return
	}

	sched := scheduler.New(cfg, orchestrator, store)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	log.Println("Goodbye!")
}

// maskConnectionString masks the password in a connection string before
// it reaches the log.
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
