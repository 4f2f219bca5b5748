package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"whale-ingest/internal/config"
	"whale-ingest/internal/ingest"
	"whale-ingest/internal/observability"
	"whale-ingest/internal/provider"
	"whale-ingest/internal/ratelimit"
	"whale-ingest/internal/storage"
	chstore "whale-ingest/internal/storage/clickhouse"
	"whale-ingest/internal/storage/memory"
	"whale-ingest/internal/storage/migrations"
	pgstore "whale-ingest/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (optional, env vars override)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	flag.Parse()

	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}

	// Start metrics server if enabled
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err = run(ctx, logger, cfg, *useMemory)

	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// run wires storage, providers and the orchestrator, then blocks until the
// context is cancelled or a chain task fails.
func run(ctx context.Context, logger *log.Logger, cfg *config.Config, useMemory bool) error {
	store, closeStore, err := openStore(ctx, logger, cfg, useMemory)
	if err != nil {
		return err
	}
	defer closeStore()

	primary, fallback, err := buildProviders(cfg, logger)
	if err != nil {
		return err
	}

	sink := observability.NewPromSink("whale_ingest", prometheus.DefaultRegisterer)

	pipeline := ingest.NewPipeline(ingest.PipelineOptions{
		Store:   store,
		Limiter: ratelimit.NewLimiter(cfg.RateLimitPerSec),
		Sink:    sink,
		Logger:  logger,
	})

	orchestrator := ingest.New(ingest.Options{
		Chains:           cfg.Chains,
		Primary:          primary,
		Fallback:         fallback,
		Store:            store,
		Pipeline:         pipeline,
		RetryBase:        cfg.RetryBase(),
		RetryMax:         cfg.RetryMax(),
		RetryMaxAttempts: cfg.RetryMaxAttempts,
		BackfillWindow:   cfg.BackfillWindow(),
		StreamLag:        cfg.StreamLag(),
		Sink:             sink,
		Logger:           logger,
	})

	logger.Printf("Starting ingestion for chains %v (primary=%s)", cfg.Chains, primary.Name())
	return orchestrator.Run(ctx)
}

// openStore selects the storage backend: in-memory, ClickHouse when a DSN is
// configured, otherwise PostgreSQL. Migrations run on startup and are
// idempotent.
func openStore(ctx context.Context, logger *log.Logger, cfg *config.Config, useMemory bool) (storage.Store, func(), error) {
	if useMemory {
		logger.Println("Using in-memory storage")
		return memory.NewStore(), func() {}, nil
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		logger.Println("Using ClickHouse storage")
		return chstore.NewStore(conn), func() { conn.Close() }, nil
	}

	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL or CLICKHOUSE_DSN is required (use --use-memory for in-memory storage)")
	}

	pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	logger.Println("Using PostgreSQL storage")
	return pgstore.NewStore(pool), func() { pool.Close() }, nil
}

// buildProviders returns the (primary, fallback) pair per configuration.
func buildProviders(cfg *config.Config, logger *log.Logger) (provider.Provider, provider.Provider, error) {
	alchemy := provider.NewAlchemy(cfg.AlchemyAPIKey, logger)
	moralis := provider.NewMoralis(cfg.MoralisAPIKey, logger)

	switch cfg.PrimaryProvider {
	case "alchemy":
		return alchemy, moralis, nil
	case "moralis":
		return moralis, alchemy, nil
	default:
		return nil, nil, fmt.Errorf("unknown primary provider %q", cfg.PrimaryProvider)
	}
}
