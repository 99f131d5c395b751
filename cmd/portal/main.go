package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian-mfg/meridian-portal/internal/app"
	"github.com/meridian-mfg/meridian-portal/internal/catalog"
	"github.com/meridian-mfg/meridian-portal/internal/observability"
	"github.com/meridian-mfg/meridian-portal/internal/permissions"
	"github.com/meridian-mfg/meridian-portal/internal/platform/cache"
	"github.com/meridian-mfg/meridian-portal/internal/platform/db"
	"github.com/meridian-mfg/meridian-portal/internal/platform/httpx"
	"github.com/meridian-mfg/meridian-portal/internal/roles"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, feature catalog cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	responder := httpx.Responder{Logger: logger, ExposeDetails: !cfg.IsProduction()}

	catalogRepo := catalog.NewRepository(pool)
	catalogCache := catalog.NewCache(redisClient, cfg.CatalogCacheTTL)
	catalogService := catalog.NewService(catalogRepo, catalogCache, logger)
	catalogHandler := catalog.NewHandler(catalogService, responder)

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo)
	rolesHandler := roles.NewHandler(rolesService, responder)

	grantRepo := permissions.NewRepository(pool, logger, metrics)
	resolver := permissions.NewResolver(permissions.ResolverConfig{
		Store:        grantRepo,
		Features:     catalogService,
		Roles:        rolesRepo,
		DefaultLevel: cfg.DefaultLevel(),
		Logger:       logger,
		Metrics:      metrics,
	})
	grantService := permissions.NewService(grantRepo)
	permissionsHandler := permissions.NewHandler(resolver, grantService, responder)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		PermissionsHandler: permissionsHandler,
		CatalogHandler:     catalogHandler,
		RolesHandler:       rolesHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
