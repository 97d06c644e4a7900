// Kestrel - explainable triage for security alerts.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrel-soc/kestrel/internal/api"
	"github.com/kestrel-soc/kestrel/internal/bus"
	"github.com/kestrel-soc/kestrel/internal/cache"
	"github.com/kestrel-soc/kestrel/internal/domain"
	"github.com/kestrel-soc/kestrel/internal/explain"
	"github.com/kestrel-soc/kestrel/internal/feedback"
	"github.com/kestrel-soc/kestrel/internal/model"
	"github.com/kestrel-soc/kestrel/internal/policy"
	"github.com/kestrel-soc/kestrel/internal/schema"
	"github.com/kestrel-soc/kestrel/internal/store"
	"github.com/kestrel-soc/kestrel/internal/triage"
	"github.com/kestrel-soc/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for distributed mode via environment
	if os.Getenv("KESTREL_MODE") == "distributed" {
		cfg = domain.DistributedConfig()
		slog.Info("running in distributed mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"mode", cfg.Mode,
		"store", cfg.Store.Backend,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Load scoring artifacts. The model and feature map are read once
	// here and never hot-swapped; operators restart the process to
	// pick up new artifacts.
	fm, err := schema.Load(cfg.Model.FeatureMapPath)
	if err != nil {
		slog.Error("failed to load feature map", "path", cfg.Model.FeatureMapPath, "error", err)
		os.Exit(1)
	}
	slog.Info("feature map loaded",
		"path", cfg.Model.FeatureMapPath,
		"version", fm.Version(),
		"features", fm.Len(),
	)

	forest, err := model.Load(cfg.Model.Path)
	if err != nil {
		slog.Error("failed to load model", "path", cfg.Model.Path, "error", err)
		os.Exit(1)
	}
	slog.Info("model loaded",
		"path", cfg.Model.Path,
		"version", forest.Version(),
		"trees", len(forest.Trees()),
	)

	pol, err := policy.Load(cfg.Model.PolicyPath)
	if err != nil {
		slog.Error("failed to load policy", "path", cfg.Model.PolicyPath, "error", err)
		os.Exit(1)
	}

	threshold := cfg.Model.Threshold
	if threshold <= 0 {
		threshold = pol.DecisionThreshold()
	}
	scorer, err := model.NewForestScorer(forest, threshold)
	if err != nil {
		slog.Error("failed to initialize scorer", "error", err)
		os.Exit(1)
	}
	slog.Info("scorer initialized", "threshold", threshold)

	// Initialize Record Store
	st, err := store.New(cfg.Store)
	if err != nil {
		slog.Error("failed to initialize record store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("record store initialized", "backend", cfg.Store.Backend)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Wire the pipeline
	processor, err := triage.NewProcessor(triage.Config{
		Scorer:     scorer,
		FeatureMap: fm,
		Strategy:   newStrategy(cfg.Explainer),
		Events:     explain.NewEventRanker(cfg.Explainer.TopEvents),
		Policy:     pol,
		Store:      st,
		Cache:      cacheImpl,
		Bus:        busImpl,
		TopK:       cfg.Explainer.TopK,
	})
	if err != nil {
		slog.Error("failed to initialize triage pipeline", "error", err)
		os.Exit(1)
	}
	slog.Info("triage pipeline initialized", "strategy", cfg.Explainer.Strategy)

	fb := feedback.NewPipeline(st, busImpl)

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, processor, cfg.Worker.Concurrency)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "concurrency", cfg.Worker.Concurrency)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, processor, fb, st, cacheImpl, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// applyEnvOverrides lets deployments point at artifacts and backends
// without a config file.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("KESTREL_MODEL"); v != "" {
		cfg.Model.Path = v
	}
	if v := os.Getenv("KESTREL_FEATURE_MAP"); v != "" {
		cfg.Model.FeatureMapPath = v
	}
	if v := os.Getenv("KESTREL_POLICY"); v != "" {
		cfg.Model.PolicyPath = v
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Store.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_INDEX_URL"); v != "" {
		cfg.Store.IndexURL = v
	}
	if v := os.Getenv("KESTREL_INDEX_USERNAME"); v != "" {
		cfg.Store.IndexUsername = v
	}
	if v := os.Getenv("KESTREL_INDEX_PASSWORD"); v != "" {
		cfg.Store.IndexPassword = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KESTREL_EXPLAINER"); v != "" {
		cfg.Explainer.Strategy = v
	}
}

func newStrategy(cfg domain.ExplainerConfig) explain.Strategy {
	if cfg.Strategy == "surrogate" {
		return &explain.SurrogateAttribution{Samples: cfg.Samples}
	}
	return &explain.TreeAttribution{Samples: cfg.Samples}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  kestrel - explainable alert triage")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Mode:     %s\n", cfg.Mode)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score                   - Score an alert and explain it")
	fmt.Println("    GET  /explanations/{alertID}  - Get a stored explanation")
	fmt.Println("    POST /feedback                - Submit analyst feedback")
	fmt.Println("    GET  /feedback/{alertID}      - List feedback for an alert")
	fmt.Println("    GET  /featuremap              - Inspect the loaded feature map")
	fmt.Println("    GET  /health                  - Health check")
	fmt.Println("    GET  /metrics                 - Prometheus metrics")
	fmt.Println()
}
