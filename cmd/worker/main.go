package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-mfg/meridian-portal/internal/app"
	"github.com/meridian-mfg/meridian-portal/internal/observability"
	"github.com/meridian-mfg/meridian-portal/internal/permissions"
	"github.com/meridian-mfg/meridian-portal/internal/platform/db"
	"github.com/meridian-mfg/meridian-portal/internal/roles"
	"github.com/meridian-mfg/meridian-portal/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	grantRepo := permissions.NewRepository(pool, logger, metrics)
	rolesRepo := roles.NewRepository(pool)
	scanner := jobs.NewIntegrityScanner(grantRepo, rolesRepo, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskGrantIntegrity, Handler: scanner.HandleTask},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.GrantIntegrityCron, Task: jobs.NewGrantIntegrityTask(), Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
