// Command server runs the infrastructure analysis HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/infrapilot/infrapilot/internal/analyzer"
	"github.com/infrapilot/infrapilot/internal/api"
	"github.com/infrapilot/infrapilot/internal/autofix"
	"github.com/infrapilot/infrapilot/internal/config"
	"github.com/infrapilot/infrapilot/internal/logger"
	"github.com/infrapilot/infrapilot/internal/providers"
	"github.com/infrapilot/infrapilot/internal/rules"
	"github.com/infrapilot/infrapilot/internal/scoring"
	"github.com/infrapilot/infrapilot/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Initialize(cfg.Logging)
	log := logger.New("main")

	if err := run(cfg, *configPath, log); err != nil {
		log.Fatal("service failed", logger.Error(err))
	}
}

func run(cfg *config.Config, configPath string, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := api.NewMetrics(registry)

	var store *storage.Store
	if cfg.Storage.Path != "" {
		var err error
		store, err = storage.Open(cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to open history store: %w", err)
		}
		defer store.Close()
	}

	router := providers.NewRouter(cfg, rules.NewEngine())
	router.OnFallback(func(reason string) {
		metrics.ProviderFallbacks.Inc()
		log.Warn("provider fallback", logger.String("reason", reason))
	})

	rescorer := scoring.NewRescorer(scoring.LookupScorer{})

	var recorder analyzer.Recorder
	if store != nil {
		recorder = store
	}
	pipeline := analyzer.New(router, rescorer, recorder)

	fixer := autofix.NewOrchestrator(cfg.Autofix)
	fixer.OnFallback(func() { metrics.AutofixFallbacks.Inc() })
	applier := autofix.NewApplier(cfg.Autofix)

	var history api.History
	if store != nil {
		history = store
	}
	handlers := api.NewHandlers(pipeline, fixer, applier, history, metrics)
	server := api.NewServer(cfg.Server, handlers, registry)

	if configPath != "" {
		go func() {
			if err := config.Watch(ctx, configPath, log); err != nil {
				log.Warn("config watch unavailable", logger.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown incomplete: %w", err)
	}
	log.Info("service stopped")
	return nil
}
