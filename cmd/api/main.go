// Package main API.
//
// go-aquamark provides a REST API that decrypts PDFs and stamps them with a
// per-account logo watermark, metering pages against a credit ledger.
//
//	Schemes: http
//	BasePath: /
//	Version: 1.0.0
//	Host: localhost:8080
//
//	Consumes:
//	- application/json
//	- multipart/form-data
//
//	Produces:
//	- application/json
//	- application/pdf
//
//	SecurityDefinitions:
//	BearerAuth:
//	  type: apiKey
//	  name: Authorization
//	  in: header
//
// swagger:meta
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-aquamark/internal/assets"
	"go-aquamark/internal/config"
	"go-aquamark/internal/decrypt"
	"go-aquamark/internal/ledger"
	"go-aquamark/internal/logging"
	"go-aquamark/internal/server"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var version = "dev"

func gracefulShutdown(apiServer *http.Server, log *zap.Logger, done chan bool, cleanupFunc func()) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Info("shutting down gracefully, press Ctrl+C again to force")

	// The server has 5 seconds to finish in-flight requests.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	if cleanupFunc != nil {
		cleanupFunc()
	}

	log.Info("server exiting")
	done <- true
}

func sweepTempDirs(cfg *config.Config, log *zap.Logger) func() {
	return func() {
		n, err := decrypt.SweepStale(cfg.TempDir)
		if err != nil {
			log.Warn("temp sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			log.Info("removed stale decrypt dirs", zap.Int("count", n))
		}
	}
}

// openLedger returns the configured store and a function releasing its
// connections.
func openLedger(ctx context.Context, cfg *config.Config, log *zap.Logger) (ledger.Store, func(), error) {
	switch cfg.LedgerDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := ledger.NewPostgresStore(pool, cfg.UsageTable)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure usage schema: %w", err)
		}
		log.Info("ledger ready", zap.String("driver", cfg.LedgerDriver), zap.String("table", cfg.UsageTable))
		return store, pool.Close, nil
	case config.DriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		log.Info("ledger ready", zap.String("driver", cfg.LedgerDriver), zap.String("addr", cfg.RedisAddr))
		return ledger.NewRedisStore(client, cfg.RedisKeyPrefix), func() { _ = client.Close() }, nil
	default:
		log.Warn("using in-memory ledger; usage is lost on restart")
		return ledger.NewMemoryStore(), func() {}, nil
	}
}

// openAssets picks the logo store. Only a local store gets a fetcher that
// reads file:// URLs, rooted at the asset directory.
func openAssets(cfg *config.Config) (assets.Store, assets.Fetcher, error) {
	if cfg.AssetDir != "" {
		dir, err := assets.NewDirStore(cfg.AssetDir)
		if err != nil {
			return nil, nil, err
		}
		return dir, assets.NewLocalFetcher(dir.Root(), 0), nil
	}
	return assets.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.LogoBucket), assets.NewHTTPFetcher(nil, 0), nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "go-aquamark",
		Version: version,
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cleanup := sweepTempDirs(cfg, log)
	cleanup()

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, closeLedger, err := openLedger(startCtx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLedger()

	logos, fetcher, err := openAssets(cfg)
	if err != nil {
		return fmt.Errorf("open asset store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	apiServer, err := server.NewServer(cfg, server.Deps{
		Ledger:   store,
		Assets:   logos,
		Fetcher:  fetcher,
		Registry: registry,
		Log:      log,
	})
	if err != nil {
		return err
	}

	done := make(chan bool, 1)
	go gracefulShutdown(apiServer, log, done, cleanup)

	log.Info("starting server", zap.String("addr", apiServer.Addr))
	if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	<-done
	log.Info("graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
