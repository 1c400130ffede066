package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/zenovak/2100-AAA/internal/config"
	"github.com/zenovak/2100-AAA/internal/database"
	"github.com/zenovak/2100-AAA/internal/delivery"
	"github.com/zenovak/2100-AAA/internal/engine"
	"github.com/zenovak/2100-AAA/internal/llm"
	"github.com/zenovak/2100-AAA/internal/llm/providers"
	"github.com/zenovak/2100-AAA/internal/metrics"
	"github.com/zenovak/2100-AAA/internal/server"
	"github.com/zenovak/2100-AAA/internal/urfn"
	"github.com/zenovak/2100-AAA/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the workflow engine HTTP API",
	Long: `Serve starts the HTTP API: task submission and polling, agent
registration, the callback receiver, and Prometheus metrics.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger(cfg.Logging)

	dbcfg := database.DefaultConfig(cfg.Database.Path)
	dbcfg.MaxOpenConns = cfg.Database.MaxConnections
	dbcfg.BusyTimeout = cfg.Database.BusyTimeout
	db, err := database.OpenWithConfig(dbcfg)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database opened", "path", db.Path())

	llmRegistry, err := buildLLMRegistry(cfg.LLM)
	if err != nil {
		return err
	}
	logger.Info("llm providers registered", "services", llmRegistry.Names())

	functions := urfn.NewRegistry()

	executor := workflow.NewExecutor(
		workflow.WithLogger(logger),
		workflow.WithLLMRegistry(llmRegistry),
		workflow.WithFunctionRegistry(functions),
		workflow.WithHTTPClient(&http.Client{Timeout: cfg.Engine.HTTPTimeout}),
		workflow.WithMaxSteps(cfg.Engine.MaxSteps),
	)

	promRegistry := prometheus.NewRegistry()
	met := metrics.New()
	if cfg.Metrics.Enabled {
		if err := met.Register(promRegistry); err != nil {
			return err
		}
	}

	taskDAO := database.NewTaskDAO(db)
	agentDAO := database.NewAgentDAO(db)

	deliverer := delivery.NewClient(
		delivery.WithLogger(logger),
		delivery.WithMetrics(met),
		delivery.WithMaxAttempts(cfg.Delivery.MaxAttempts),
		delivery.WithRetryDelay(cfg.Delivery.RetryDelay),
		delivery.WithHTTPClient(&http.Client{Timeout: cfg.Delivery.Timeout}),
	)

	manager := engine.NewManager(executor,
		engine.WithLogger(logger),
		engine.WithTaskDAO(taskDAO),
		engine.WithDelivery(deliverer),
		engine.WithMetrics(met),
	)

	srv := server.New(cfg.Server, manager,
		server.WithLogger(logger),
		server.WithAgentDAO(agentDAO),
		server.WithTaskDAO(taskDAO),
		server.WithGatherer(promRegistry),
	)

	logger.Info("server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
	if err := srv.ListenAndServe(ctx, cfg.Server.ShutdownTimeout); err != nil {
		return err
	}

	// Let in-flight workflow runs finish delivering before exit.
	manager.Wait()
	logger.Info("server stopped")
	return nil
}

// buildLLMRegistry registers one provider per configured service name.
func buildLLMRegistry(lc config.LLMConfig) (*llm.Registry, error) {
	registry := llm.NewRegistry()
	for name, pc := range lc.Providers {
		provider, err := providers.NewProvider(llm.ProviderConfig{
			Type:         pc.Type,
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		registry.Register(provider, name)
	}
	return registry, nil
}
