package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ASKEROS1449/router-auto-connect/internal/api"
	"github.com/ASKEROS1449/router-auto-connect/internal/config"
	"github.com/ASKEROS1449/router-auto-connect/internal/engine"
	"github.com/ASKEROS1449/router-auto-connect/internal/journal"
	"github.com/ASKEROS1449/router-auto-connect/internal/metrics"
	"github.com/ASKEROS1449/router-auto-connect/internal/storage"
	log "github.com/sirupsen/logrus"
)

const version = "1.0.0"

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)
	log.Infof("Starting Router Auto Connect Service v%s", version)

	// Load configuration
	configPath := "config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set log level
	if level, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(level)
	}

	// Initialize metrics
	metricsCollector := metrics.NewCollector(cfg.Metrics.Namespace)

	// Initialize journal storage
	store, err := storage.NewStorage(cfg.Storage.Type, cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Initialize decision journal
	journalMgr := journal.NewManager(store, cfg.Journal.PersistIntervalSeconds, cfg.Journal.HistoryLimit)
	if err := journalMgr.LoadFromStorage(); err != nil {
		log.Warnf("Failed to load persisted journal: %v (starting fresh)", err)
	}

	// Initialize decision engine
	eng, err := engine.New(cfg, metricsCollector, journalMgr)
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}
	log.Infof("Engine initialized: %d target ranges, %d endpoint candidates",
		len(cfg.Engine.TargetRanges), len(cfg.Engine.Candidates))

	// Start API server
	apiServer := api.NewServer(cfg, eng, journalMgr, metricsCollector)
	go func() {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	log.Infof("Service started successfully on %s", cfg.API.Addr)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down gracefully...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("API server shutdown error: %v", err)
	}

	journalMgr.Close()

	log.Info("Shutdown complete")
}
