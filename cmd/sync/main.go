package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"

	"github.com/adsynchq/adsync-backend/internal/etl/fetcher"
	"github.com/adsynchq/adsync-backend/internal/etl/normalizer"
	"github.com/adsynchq/adsync-backend/internal/etl/orchestrator"
	"github.com/adsynchq/adsync-backend/internal/repo"
	"github.com/adsynchq/adsync-backend/internal/warehouse/guard"
	"github.com/adsynchq/adsync-backend/internal/warehouse/loader"
	"github.com/adsynchq/adsync-backend/pkg/adsapi"
	"github.com/adsynchq/adsync-backend/pkg/config"
	"github.com/adsynchq/adsync-backend/pkg/db"
	"github.com/adsynchq/adsync-backend/pkg/enums"
	"github.com/adsynchq/adsync-backend/pkg/logger"
	"github.com/adsynchq/adsync-backend/pkg/migrate"
)

// One-shot sync runner for manual backfills. The long-running worker in
// cmd/sync-worker handles scheduled loads.
func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "sync"})

	_ = godotenv.Load()

	account := flag.String("account", "", "ad account id to sync")
	lookback := flag.Int("lookback", 0, "lookback window in days (0 uses the configured default)")
	breakdowns := flag.String("breakdowns", "", "comma separated breakdown groups (default: all)")
	flag.Parse()

	if *account == "" {
		fmt.Fprintln(os.Stderr, "missing -account")
		os.Exit(1)
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "sync"

	logg = logger.New(logger.Options{
		ServiceName: "sync",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	groups, err := parseBreakdowns(*breakdowns)
	requireResource(ctx, logg, "breakdowns flag", err)

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database client", err)
		}
	}()

	err = migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	adsClient, err := adsapi.NewClient(context.Background(), cfg.AdsAPI, logg)
	requireResource(ctx, logg, "ads api client", err)

	rangeFetcher, err := fetcher.New(adsClient, cfg.ETL, logg, nil)
	requireResource(ctx, logg, "fetcher", err)

	factLoader, err := loader.New(dbClient.DB(), logg)
	requireResource(ctx, logg, "loader", err)

	integrityGuard, err := guard.New(dbClient.DB(), factLoader, logg)
	requireResource(ctx, logg, "guard", err)

	runner, err := orchestrator.New(orchestrator.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient.DB(),
		Fetcher:    rangeFetcher,
		Normalizer: normalizer.New(nil),
		Loader:     factLoader,
		Guard:      integrityGuard,
		Runs:       repo.NewSyncRuns(repo.NewBase(dbClient.DB())),
	})
	requireResource(ctx, logg, "orchestrator", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":     cfg.App.Env,
		"account": *account,
	})

	summary, err := runner.Run(runCtx, orchestrator.Request{
		AccountID:    *account,
		LookbackDays: *lookback,
		Breakdowns:   groups,
	})
	if err != nil {
		logg.Error(runCtx, "sync run failed", err)
		os.Exit(1)
	}

	encoded, err := json.MarshalIndent(map[string]any{
		"run_id":         summary.RunID,
		"status":         summary.Status,
		"tables_loaded":  summary.TablesLoaded,
		"rows_per_table": summary.RowsPerTable,
		"failed_chunks":  summary.FailedChunks,
		"failed_tables":  summary.FailedTables,
		"error":          summary.Error,
	}, "", "  ")
	requireResource(ctx, logg, "summary encoding", err)
	fmt.Println(string(encoded))

	if summary.Status != enums.RunStatusSucceeded {
		os.Exit(1)
	}
}

func parseBreakdowns(raw string) ([]enums.BreakdownGroup, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var groups []enums.BreakdownGroup
	for _, part := range strings.Split(raw, ",") {
		group, err := enums.ParseBreakdownGroup(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
