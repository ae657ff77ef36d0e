package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/spendcheck/internal/config"
	"github.com/JonMunkholm/spendcheck/internal/core"
	"github.com/JonMunkholm/spendcheck/internal/logging"
	"github.com/JonMunkholm/spendcheck/internal/store"
	"github.com/JonMunkholm/spendcheck/internal/web"
)

func main() {
	// Load .env file if it exists. Variables already set in the environment win.
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"fix_window", cfg.Pipeline.FixWindow,
		"fix_batch_size", cfg.Pipeline.FixBatchSize,
		"max_runs", cfg.Pipeline.MaxRuns,
		"artifact_format", cfg.Pipeline.ArtifactFormat,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"archive", archiveKind(cfg),
	)

	ctx := context.Background()

	archive, closeArchive, err := openArchive(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open run archive", "error", err)
		os.Exit(1)
	}
	defer closeArchive()

	sessionOpts, err := sessionOptions(cfg.Pipeline)
	if err != nil {
		slog.Error("invalid pipeline configuration", "error", err)
		os.Exit(1)
	}

	manager := core.NewManager(core.ManagerConfig{
		MaxRuns:   cfg.Pipeline.MaxRuns,
		MaxWait:   cfg.Pipeline.MaxWait,
		Retention: cfg.Pipeline.Retention,
		Session:   sessionOpts,
		Archiver:  archive,
	})

	server := web.NewServer(manager, archive, cfg)

	// Cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go manager.StartTimeoutSweeper(jobCtx, cfg.Pipeline.SweepInterval)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := manager.LimiterStatus(); status.Active > 0 {
			slog.Warn("discarding live runs", "active", status.Active)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func archiveKind(cfg *config.Config) string {
	if cfg.Database.URL == "" {
		return "memory"
	}
	return "postgres"
}

// openArchive connects to PostgreSQL when a URL is configured and falls back
// to an in-memory archive otherwise.
func openArchive(ctx context.Context, db config.DatabaseConfig) (store.Archive, func(), error) {
	if db.URL == "" {
		return store.NewMemoryArchive(), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, nil, err
	}
	poolConfig.MaxConns = int32(db.MaxConns)
	poolConfig.MinConns = int32(db.MinConns)
	poolConfig.MaxConnLifetime = db.MaxConnLifetime
	poolConfig.MaxConnIdleTime = db.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	if u, err := url.Parse(db.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	archive := store.NewPostgresArchive(pool)
	if err := archive.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return archive, pool.Close, nil
}

// sessionOptions builds the per-run settings from the pipeline config.
func sessionOptions(p config.PipelineConfig) (core.SessionOptions, error) {
	format, err := core.ParseArtifactFormat(p.ArtifactFormat)
	if err != nil {
		return core.SessionOptions{}, err
	}

	derive := core.DefaultStandardDerivations()
	if len(p.CostCenters) > 0 {
		derive.CostCenters = p.CostCenters
	}
	if p.ApprovalDept != "" {
		derive.ApprovalDept = p.ApprovalDept
	}
	derive.ApprovalAbove = p.ApprovalThreshold

	return core.SessionOptions{
		FixWindow:    p.FixWindow,
		FixBatchSize: p.FixBatchSize,
		Format:       format,
		Derivations:  &derive,
	}, nil
}
