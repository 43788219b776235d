// Package main provides the entry point for the LingoRelay server. The
// server exposes an OpenAI-compatible API and adapts incoming requests to
// the upstream translation backend, routing oversized input through the
// chunked translation pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lingorelay/lingorelay/internal/api"
	"github.com/lingorelay/lingorelay/internal/api/handlers"
	"github.com/lingorelay/lingorelay/internal/backend"
	"github.com/lingorelay/lingorelay/internal/config"
	"github.com/lingorelay/lingorelay/internal/logging"
	"github.com/lingorelay/lingorelay/internal/metrics"
	"github.com/lingorelay/lingorelay/internal/pipeline"
	"github.com/lingorelay/lingorelay/internal/registry"
	"github.com/lingorelay/lingorelay/internal/watcher"
	log "github.com/sirupsen/logrus"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// recorderTTL bounds how long terminal lifecycle entries stay queryable.
const recorderTTL = time.Hour

func init() {
	logging.SetupBaseLogger()
}

func main() {
	fmt.Printf("LingoRelay Version: %s, Commit: %s, BuiltAt: %s\n", Version, Commit, BuildDate)

	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to the configuration file")
	flag.Parse()

	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("failed to load configuration")
	}

	logging.SetLevelFromName(cfg.LoggingLevel)
	logging.SetRequestLogEnabled(cfg.RequestLog)
	logging.SetVerboseEnabled(cfg.VerboseLogging)
	if cfg.LogToFile {
		logging.ConfigureFileOutput(cfg.LogDir)
	}

	registry.GetGlobalRegistry().SetModels(cfg.Models)
	metrics.SetEnabled(cfg.Metrics)
	if cfg.Metrics {
		metrics.Register()
	}

	recorder := metrics.NewRecorder(recorderTTL)
	client := backend.New(cfg.Backend)
	orchestrator := pipeline.New(client, recorder, cfg.Chunking)
	base := handlers.NewBaseAPIHandlers(cfg, client, orchestrator, recorder)
	server := api.NewServer(cfg, base)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configWatcher := watcher.New(configPath, server.ApplyConfig)
	go func() {
		if errWatch := configWatcher.Start(ctx); errWatch != nil && errWatch != context.Canceled {
			log.WithField("error", errWatch.Error()).Warn("config watcher stopped")
		}
	}()

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("shutting down")
	case errServe := <-errChan:
		if errServe != nil {
			log.WithField("error", errServe.Error()).Fatal("server failed")
		}
		return
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		log.WithField("error", errShutdown.Error()).Error("graceful shutdown failed")
	}
	log.Info("server stopped")
}
