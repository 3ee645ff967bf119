package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adsynchq/adsync-backend/api/controllers"
	"github.com/adsynchq/adsync-backend/api/routes"
	"github.com/adsynchq/adsync-backend/internal/etl/fetcher"
	"github.com/adsynchq/adsync-backend/internal/etl/normalizer"
	"github.com/adsynchq/adsync-backend/internal/etl/orchestrator"
	"github.com/adsynchq/adsync-backend/internal/etl/progress"
	"github.com/adsynchq/adsync-backend/internal/etl/worker"
	"github.com/adsynchq/adsync-backend/internal/repo"
	"github.com/adsynchq/adsync-backend/internal/warehouse/guard"
	"github.com/adsynchq/adsync-backend/internal/warehouse/loader"
	"github.com/adsynchq/adsync-backend/pkg/adsapi"
	"github.com/adsynchq/adsync-backend/pkg/config"
	"github.com/adsynchq/adsync-backend/pkg/db"
	"github.com/adsynchq/adsync-backend/pkg/logger"
	"github.com/adsynchq/adsync-backend/pkg/metrics"
	"github.com/adsynchq/adsync-backend/pkg/migrate"
	"github.com/adsynchq/adsync-backend/pkg/pubsub"
	"github.com/adsynchq/adsync-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "sync-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "sync-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sync-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database client", err)
		}
	}()

	err = migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	adsClient, err := adsapi.NewClient(context.Background(), cfg.AdsAPI, logg)
	requireResource(ctx, logg, "ads api client", err)

	registry := prometheus.NewRegistry()
	etlMetrics := metrics.NewETLMetrics(registry)

	rangeFetcher, err := fetcher.New(adsClient, cfg.ETL, logg, etlMetrics)
	requireResource(ctx, logg, "fetcher", err)

	factLoader, err := loader.New(dbClient.DB(), logg)
	requireResource(ctx, logg, "loader", err)

	integrityGuard, err := guard.New(dbClient.DB(), factLoader, logg)
	requireResource(ctx, logg, "guard", err)

	runner, err := orchestrator.New(orchestrator.Params{
		Config:     cfg,
		Logger:     logg,
		Metrics:    etlMetrics,
		DB:         dbClient.DB(),
		Fetcher:    rangeFetcher,
		Normalizer: normalizer.New(nil),
		Loader:     factLoader,
		Guard:      integrityGuard,
		Runs:       repo.NewSyncRuns(repo.NewBase(dbClient.DB())),
		Progress:   progress.New(pubsubClient.ProgressPublisher(), logg),
	})
	requireResource(ctx, logg, "orchestrator", err)

	subscription := pubsubClient.SyncSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "sync subscription", errors.New("subscription not configured"))
	}

	service, err := worker.NewService(subscription, runner, redisClient, logg)
	requireResource(ctx, logg, "worker service", err)

	adminRouter := routes.NewRouter(cfg, logg, registry, runner,
		repo.NewSyncRuns(repo.NewBase(dbClient.DB())),
		map[string]controllers.Pinger{
			"postgres": dbClient,
			"redis":    redisClient,
			"pubsub":   pubsubClient,
		})
	adminServer := &http.Server{Addr: cfg.Metrics.Addr, Handler: adminRouter}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	go func() {
		addrCtx := logg.WithField(runCtx, "addr", cfg.Metrics.Addr)
		logg.Info(addrCtx, "admin server listening")
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(addrCtx, "admin server stopped unexpectedly", err)
		}
	}()
	defer func() {
		if err := adminServer.Shutdown(context.Background()); err != nil {
			logg.Error(ctx, "admin server shutdown failed", err)
		}
	}()

	logg.Info(runCtx, "sync worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "sync worker failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
