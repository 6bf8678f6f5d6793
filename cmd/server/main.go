package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/playhall/arcadepass/internal/config"
	"github.com/playhall/arcadepass/internal/database"
	"github.com/playhall/arcadepass/internal/kv"
	"github.com/playhall/arcadepass/internal/migrations"
	"github.com/playhall/arcadepass/internal/policy"
	"github.com/playhall/arcadepass/internal/report"
	"github.com/playhall/arcadepass/internal/server"
	"github.com/playhall/arcadepass/internal/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	// --- Session state store ---
	var store kv.Store
	var kvPing server.Pinger
	if cfg.RedisURL != "" {
		rdb, err := kv.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		store = rdb
		kvPing = rdb
		logger.Info("connected to redis")
	} else {
		store = kv.NewMemory()
		logger.Warn("no redis configured; sessions will not survive a restart")
	}

	// --- Score reporting ---
	var reporter session.Reporter
	if cfg.ScoreReportURL != "" {
		reporter = report.NewClient(cfg.ScoreReportURL)
		logger.Info("score reporting enabled", "url", cfg.ScoreReportURL)
	} else {
		logger.Warn("no score report url configured; final scores are logged only")
	}

	// --- Policies and seed data ---
	policies := policy.NewSQLiteStore(db)
	if err := server.Seed(ctx, logger, db, policies, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fmt.Errorf("seeding: %w", err)
	}

	// --- HTTP server ---
	reg := server.NewRegistry(store, reporter, clockwork.NewRealClock(), logger)
	defer reg.Close()

	srv := server.New(cfg.HTTPAddr, logger, db, policies, reg, kvPing)

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}
