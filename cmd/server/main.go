package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskstream/integration-service/internal/adapters"
	"github.com/taskstream/integration-service/internal/api"
	"github.com/taskstream/integration-service/internal/config"
	"github.com/taskstream/integration-service/internal/models"
	"github.com/taskstream/integration-service/internal/services"
	"github.com/taskstream/integration-service/pkg/observability"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "integration-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", os.Getenv("TASKSTREAM_CONFIG_FILE"), "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := observability.NewLogger("integration-service", cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	var metrics observability.MetricsClient
	if cfg.Metrics.Enabled {
		metrics = observability.NewPrometheusMetricsClient(cfg.Metrics.Namespace)
	} else {
		metrics = observability.NewNoopMetricsClient()
	}
	defer metrics.Close()

	manager, err := services.NewSyncManager(cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("building sync manager: %w", err)
	}

	registerAdapters(manager, cfg, logger)

	if err := manager.StartSync(); err != nil {
		return fmt.Errorf("starting sync loop: %w", err)
	}

	server := api.NewServer(manager, logger, metrics, cfg.API)

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("shutdown signal received", map[string]interface{}{
				"signal": sig.String(),
			})
		case <-ctx.Done():
		}

		if err := manager.StopSync(); err != nil {
			logger.Warn("sync manager stop reported error", map[string]interface{}{
				"error": err.Error(),
			})
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("integration service stopped", nil)
	return nil
}

// registerAdapters wires each configured external service into the manager.
// A failed registration is logged and skipped so one bad credential set does
// not take down the remaining integrations.
func registerAdapters(manager *services.SyncManager, cfg *config.Config, logger observability.Logger) {
	type candidate struct {
		name        string
		integration models.Integration
		configured  bool
	}

	for _, c := range []candidate{
		{name: "slack", integration: adapters.NewSlackAdapter(), configured: cfg.Slack != nil},
		{name: "email", integration: adapters.NewEmailAdapter(), configured: cfg.Email != nil},
		{name: "jira", integration: adapters.NewJiraAdapter(), configured: cfg.Jira != nil},
	} {
		if !c.configured {
			logger.Debug("integration not configured, skipping", map[string]interface{}{
				"integration": c.name,
			})
			continue
		}
		if err := manager.RegisterIntegration(c.name, c.integration); err != nil {
			logger.Error("failed to register integration", map[string]interface{}{
				"integration": c.name,
				"error":       err.Error(),
			})
			continue
		}
		logger.Info("integration registered", map[string]interface{}{
			"integration": c.name,
		})
	}
}
