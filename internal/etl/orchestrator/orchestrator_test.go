package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/adsynchq/adsync-backend/internal/etl/fetcher"
	"github.com/adsynchq/adsync-backend/internal/etl/normalizer"
	"github.com/adsynchq/adsync-backend/internal/repo"
	"github.com/adsynchq/adsync-backend/internal/warehouse/guard"
	"github.com/adsynchq/adsync-backend/internal/warehouse/loader"
	"github.com/adsynchq/adsync-backend/pkg/adsapi"
	"github.com/adsynchq/adsync-backend/pkg/config"
	"github.com/adsynchq/adsync-backend/pkg/db/models"
	"github.com/adsynchq/adsync-backend/pkg/enums"
	pkgerrors "github.com/adsynchq/adsync-backend/pkg/errors"
	"github.com/adsynchq/adsync-backend/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	return conn
}

func createWarehouse(t *testing.T, db *gorm.DB) {
	t.Helper()
	ddl := []string{
		`CREATE TABLE dim_date (
			date_key INTEGER PRIMARY KEY, full_date DATETIME NOT NULL,
			year INTEGER NOT NULL, month INTEGER NOT NULL, day INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL
		)`,
		`CREATE TABLE dim_campaign (
			campaign_id INTEGER PRIMARY KEY, account_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL, status TEXT NOT NULL DEFAULT '',
			objective TEXT NOT NULL DEFAULT '', created_at DATETIME, updated_at DATETIME
		)`,
		`CREATE TABLE dim_adset (
			adset_id INTEGER PRIMARY KEY, campaign_id INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL, status TEXT NOT NULL DEFAULT '',
			created_at DATETIME, updated_at DATETIME
		)`,
		`CREATE TABLE dim_ad (
			ad_id INTEGER PRIMARY KEY, adset_id INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL, status TEXT NOT NULL DEFAULT '',
			created_at DATETIME, updated_at DATETIME
		)`,
		`CREATE TABLE dim_creative (
			creative_id INTEGER PRIMARY KEY, name TEXT NOT NULL,
			created_at DATETIME, updated_at DATETIME
		)`,
		`CREATE TABLE dim_placement (placement_key INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE)`,
		`CREATE TABLE dim_country (country_key INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE)`,
		`CREATE TABLE dim_age_group (age_group_key INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE)`,
		`CREATE TABLE dim_gender (gender_key INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE)`,
		`CREATE TABLE dim_action_type (action_type_key INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE)`,
		`CREATE TABLE fact_core_metrics (
			date_key INTEGER NOT NULL, campaign_id INTEGER NOT NULL,
			adset_id INTEGER NOT NULL, ad_id INTEGER NOT NULL, creative_id INTEGER NOT NULL,
			account_id TEXT NOT NULL DEFAULT '', spend REAL NOT NULL DEFAULT 0,
			impressions INTEGER NOT NULL DEFAULT 0, clicks INTEGER NOT NULL DEFAULT 0,
			purchases INTEGER NOT NULL DEFAULT 0,
			video_watch_p25 INTEGER NOT NULL DEFAULT 0, video_watch_p50 INTEGER NOT NULL DEFAULT 0,
			video_watch_p75 INTEGER NOT NULL DEFAULT 0, video_watch_p95 INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (date_key, campaign_id, adset_id, ad_id, creative_id)
		)`,
		`CREATE TABLE fact_placement_metrics (
			date_key INTEGER NOT NULL, campaign_id INTEGER NOT NULL,
			adset_id INTEGER NOT NULL, ad_id INTEGER NOT NULL, creative_id INTEGER NOT NULL,
			placement_key INTEGER NOT NULL, account_id TEXT NOT NULL DEFAULT '',
			spend REAL NOT NULL DEFAULT 0, impressions INTEGER NOT NULL DEFAULT 0,
			clicks INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (date_key, campaign_id, adset_id, ad_id, creative_id, placement_key)
		)`,
		`CREATE TABLE fact_age_gender_metrics (
			date_key INTEGER NOT NULL, campaign_id INTEGER NOT NULL,
			adset_id INTEGER NOT NULL, ad_id INTEGER NOT NULL, creative_id INTEGER NOT NULL,
			age_group_key INTEGER NOT NULL, gender_key INTEGER NOT NULL,
			account_id TEXT NOT NULL DEFAULT '', spend REAL NOT NULL DEFAULT 0,
			impressions INTEGER NOT NULL DEFAULT 0, clicks INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (date_key, campaign_id, adset_id, ad_id, creative_id, age_group_key, gender_key)
		)`,
		`CREATE TABLE fact_country_metrics (
			date_key INTEGER NOT NULL, campaign_id INTEGER NOT NULL,
			adset_id INTEGER NOT NULL, ad_id INTEGER NOT NULL, creative_id INTEGER NOT NULL,
			country_key INTEGER NOT NULL, account_id TEXT NOT NULL DEFAULT '',
			spend REAL NOT NULL DEFAULT 0, impressions INTEGER NOT NULL DEFAULT 0,
			clicks INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (date_key, campaign_id, adset_id, ad_id, creative_id, country_key)
		)`,
		`CREATE TABLE fact_action_metrics (
			date_key INTEGER NOT NULL, account_id TEXT NOT NULL,
			campaign_id INTEGER NOT NULL, adset_id INTEGER NOT NULL,
			ad_id INTEGER NOT NULL, creative_id INTEGER NOT NULL,
			action_type_key INTEGER NOT NULL, attribution_window TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0, value REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (date_key, account_id, campaign_id, adset_id, ad_id, creative_id, action_type_key, attribution_window)
		)`,
		`CREATE TABLE sync_runs (
			id TEXT PRIMARY KEY, account_id TEXT NOT NULL,
			status TEXT NOT NULL, stage TEXT NOT NULL,
			lookback_days INTEGER NOT NULL, breakdowns TEXT,
			failed_chunks INTEGER NOT NULL DEFAULT 0, failed_tables INTEGER NOT NULL DEFAULT 0,
			row_counts BLOB, error TEXT,
			started_at DATETIME NOT NULL, finished_at DATETIME
		)`,
	}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
}

type fakeFetcher struct {
	core     fetcher.Result
	byGroup  map[enums.BreakdownGroup]fetcher.Result
	coreErr  error
	groupErr error
}

func (f *fakeFetcher) FetchRange(_ context.Context, _ string, breakdown enums.BreakdownGroup, _, _ time.Time) (fetcher.Result, error) {
	if breakdown == enums.BreakdownGroup("") {
		return f.core, f.coreErr
	}
	if f.groupErr != nil {
		return fetcher.Result{}, f.groupErr
	}
	return f.byGroup[breakdown], nil
}

func coreRow(date, campaign string, spend string) adsapi.InsightRow {
	return adsapi.InsightRow{
		DateStart:    date,
		AccountID:    "act_1",
		CampaignID:   campaign,
		CampaignName: "Campaign " + campaign,
		AdsetID:      "21",
		AdsetName:    "AdSet 21",
		AdID:         "31",
		AdName:       "Ad 31",
		CreativeID:   "41",
		CreativeName: "Creative 41",
		Spend:        spend,
		Impressions:  "1000",
		Clicks:       "50",
		Actions: []adsapi.ActionEntry{
			{ActionType: "offsite_conversion.fb_pixel_purchase", Value: "3", SevenDayClick: "3"},
			{ActionType: "comment", Value: "9", SevenDayClick: "9"},
		},
		ActionValues: []adsapi.ActionEntry{
			{ActionType: "offsite_conversion.fb_pixel_purchase", SevenDayClick: "149.90"},
		},
	}
}

func newTestOrchestrator(t *testing.T, db *gorm.DB, f rangeFetcher) *Orchestrator {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	ldr, err := loader.New(db, logg)
	require.NoError(t, err)
	grd, err := guard.New(db, ldr, logg)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.ETL.LookbackDays = 7
	cfg.ETL.MaxLookbackDays = 1095

	o, err := New(Params{
		Config:     cfg,
		Logger:     logg,
		DB:         db,
		Fetcher:    f,
		Normalizer: normalizer.New(nil),
		Loader:     ldr,
		Guard:      grd,
		Runs:       repo.NewSyncRuns(repo.NewBase(db)),
	})
	require.NoError(t, err)
	return o
}

func TestRun_FullPipeline(t *testing.T) {
	db := newTestDB(t)
	createWarehouse(t, db)

	f := &fakeFetcher{
		core: fetcher.Result{Rows: []adsapi.InsightRow{
			coreRow("2024-01-01", "11", "10.5"),
			coreRow("2024-01-02", "11", "20.0"),
		}},
		byGroup: map[enums.BreakdownGroup]fetcher.Result{
			enums.BreakdownPlacement: {Rows: []adsapi.InsightRow{
				func() adsapi.InsightRow {
					row := coreRow("2024-01-01", "11", "6.0")
					row.Placement = "facebook_feed"
					return row
				}(),
			}},
			enums.BreakdownCountry: {Rows: []adsapi.InsightRow{
				func() adsapi.InsightRow {
					row := coreRow("2024-01-01", "11", "4.0")
					row.Country = "IL"
					return row
				}(),
			}},
		},
	}
	o := newTestOrchestrator(t, db, f)

	summary, err := o.Run(context.Background(), Request{AccountID: "act_1"})
	require.NoError(t, err)
	require.Equal(t, enums.RunStatusSucceeded, summary.Status)
	require.Equal(t, 5, summary.TablesLoaded)
	require.Equal(t, 2, summary.RowsPerTable["fact_core_metrics"])
	require.Equal(t, 1, summary.RowsPerTable["fact_placement_metrics"])

	// Dates referenced by facts were preloaded.
	var dateCount int64
	require.NoError(t, db.Model(&models.DimDate{}).Where("date_key IN ?", []int{20240101, 20240102}).Count(&dateCount).Error)
	require.Equal(t, int64(2), dateCount)

	// Every dimension holds exactly one sentinel row.
	var sentinel int64
	require.NoError(t, db.Table("dim_placement").Where("placement_key = 0").Count(&sentinel).Error)
	require.Equal(t, int64(1), sentinel)

	// The discovered placement resolved to a real surrogate key.
	var placementFact struct {
		PlacementKey int64
		Spend        float64
	}
	require.NoError(t, db.Table("fact_placement_metrics").Select("placement_key, spend").Take(&placementFact).Error)
	require.NotZero(t, placementFact.PlacementKey)
	require.Equal(t, 6.0, placementFact.Spend)

	// Normalized purchase actions landed; the unmapped "comment" did not.
	var actionCount int64
	require.NoError(t, db.Table("fact_action_metrics").Count(&actionCount).Error)
	require.Equal(t, int64(2), actionCount)

	var run models.SyncRun
	require.NoError(t, db.First(&run).Error)
	require.Equal(t, enums.RunStatusSucceeded, run.Status)
	require.Equal(t, enums.StageDone, run.Stage)
	require.NotNil(t, run.FinishedAt)
}

func TestRun_IdempotentReload(t *testing.T) {
	db := newTestDB(t)
	createWarehouse(t, db)

	f := &fakeFetcher{
		core: fetcher.Result{Rows: []adsapi.InsightRow{coreRow("2024-01-01", "11", "10.5")}},
	}
	o := newTestOrchestrator(t, db, f)

	_, err := o.Run(context.Background(), Request{AccountID: "act_1", Breakdowns: []enums.BreakdownGroup{enums.BreakdownCountry}})
	require.NoError(t, err)
	_, err = o.Run(context.Background(), Request{AccountID: "act_1", Breakdowns: []enums.BreakdownGroup{enums.BreakdownCountry}})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Table("fact_core_metrics").Count(&count).Error)
	require.Equal(t, int64(1), count, "re-running must not duplicate fact rows")

	var spend float64
	require.NoError(t, db.Table("fact_core_metrics").Select("spend").Take(&spend).Error)
	require.Equal(t, 10.5, spend, "re-running must not double measures")
}

func TestRun_UnmappedBreakdownLoadsWithSentinel(t *testing.T) {
	db := newTestDB(t)
	createWarehouse(t, db)

	// A row whose country value never reaches the dimension table: blank
	// values are skipped by discovery, so resolution falls back to 0.
	row := coreRow("2024-01-01", "11", "4.0")
	row.Country = ""
	f := &fakeFetcher{
		core:    fetcher.Result{},
		byGroup: map[enums.BreakdownGroup]fetcher.Result{enums.BreakdownCountry: {Rows: []adsapi.InsightRow{row}}},
	}
	o := newTestOrchestrator(t, db, f)

	summary, err := o.Run(context.Background(), Request{AccountID: "act_1", Breakdowns: []enums.BreakdownGroup{enums.BreakdownCountry}})
	require.NoError(t, err)
	require.Equal(t, enums.RunStatusSucceeded, summary.Status)

	var countryKey int64
	require.NoError(t, db.Table("fact_country_metrics").Select("country_key").Take(&countryKey).Error)
	require.Zero(t, countryKey, "unmapped value loads against the sentinel instead of being dropped")
}

func TestRun_FailedChunksDegradeToPartial(t *testing.T) {
	db := newTestDB(t)
	createWarehouse(t, db)

	f := &fakeFetcher{
		core: fetcher.Result{
			Rows:         []adsapi.InsightRow{coreRow("2024-01-01", "11", "10.5")},
			FailedChunks: 2,
		},
	}
	o := newTestOrchestrator(t, db, f)

	summary, err := o.Run(context.Background(), Request{AccountID: "act_1", Breakdowns: []enums.BreakdownGroup{enums.BreakdownPlacement}})
	require.NoError(t, err)
	require.Equal(t, enums.RunStatusPartial, summary.Status)
	require.Equal(t, 2, summary.FailedChunks)

	var run models.SyncRun
	require.NoError(t, db.First(&run).Error)
	require.Equal(t, enums.RunStatusPartial, run.Status)
	require.Equal(t, 2, run.FailedChunks)
}

// handshakeFetcher makes each fetch wait until the other has started,
// so the run only completes when both fetches are in flight at once.
type handshakeFetcher struct {
	core         fetcher.Result
	byGroup      map[enums.BreakdownGroup]fetcher.Result
	coreStarted  chan struct{}
	groupStarted chan struct{}
}

func (f *handshakeFetcher) FetchRange(_ context.Context, _ string, breakdown enums.BreakdownGroup, _, _ time.Time) (fetcher.Result, error) {
	if breakdown == enums.BreakdownGroup("") {
		close(f.coreStarted)
		select {
		case <-f.groupStarted:
		case <-time.After(2 * time.Second):
			return fetcher.Result{}, fmt.Errorf("breakdown fetch never started")
		}
		return f.core, nil
	}
	close(f.groupStarted)
	select {
	case <-f.coreStarted:
	case <-time.After(2 * time.Second):
		return fetcher.Result{}, fmt.Errorf("core fetch never started")
	}
	return f.byGroup[breakdown], nil
}

func TestRun_FetchesCoreAndBreakdownsConcurrently(t *testing.T) {
	db := newTestDB(t)
	createWarehouse(t, db)

	row := coreRow("2024-01-01", "11", "4.0")
	row.Country = "IL"
	f := &handshakeFetcher{
		core:         fetcher.Result{Rows: []adsapi.InsightRow{coreRow("2024-01-01", "11", "10.5")}},
		byGroup:      map[enums.BreakdownGroup]fetcher.Result{enums.BreakdownCountry: {Rows: []adsapi.InsightRow{row}}},
		coreStarted:  make(chan struct{}),
		groupStarted: make(chan struct{}),
	}

	o := newTestOrchestrator(t, db, f)

	summary, err := o.Run(context.Background(), Request{AccountID: "act_1", Breakdowns: []enums.BreakdownGroup{enums.BreakdownCountry}})
	require.NoError(t, err)
	require.Equal(t, enums.RunStatusSucceeded, summary.Status)
	require.Equal(t, 1, summary.RowsPerTable["fact_core_metrics"])
	require.Equal(t, 1, summary.RowsPerTable["fact_country_metrics"])
}

func TestRun_DatePreloadFailureAborts(t *testing.T) {
	db := newTestDB(t)
	createWarehouse(t, db)
	require.NoError(t, db.Exec(`DROP TABLE dim_date`).Error)

	f := &fakeFetcher{
		core: fetcher.Result{Rows: []adsapi.InsightRow{coreRow("2024-01-01", "11", "10.5")}},
	}
	o := newTestOrchestrator(t, db, f)

	summary, err := o.Run(context.Background(), Request{AccountID: "act_1", Breakdowns: []enums.BreakdownGroup{enums.BreakdownPlacement}})
	require.Error(t, err)
	require.True(t, pkgerrors.IsFatal(err))
	require.Equal(t, enums.RunStatusAborted, summary.Status)

	var run models.SyncRun
	require.NoError(t, db.First(&run).Error)
	require.Equal(t, enums.RunStatusAborted, run.Status)
	require.Equal(t, enums.StageFailed, run.Stage)
	require.NotNil(t, run.Error)
}

func TestRun_LogsCarryCurrentStage(t *testing.T) {
	db := newTestDB(t)
	createWarehouse(t, db)

	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.DebugLevel, Output: buf})
	ldr, err := loader.New(db, logg)
	require.NoError(t, err)
	grd, err := guard.New(db, ldr, logg)
	require.NoError(t, err)
	cfg := &config.Config{}
	cfg.ETL.LookbackDays = 7
	cfg.ETL.MaxLookbackDays = 1095
	o, err := New(Params{
		Config:     cfg,
		Logger:     logg,
		DB:         db,
		Fetcher:    &fakeFetcher{core: fetcher.Result{Rows: []adsapi.InsightRow{coreRow("2024-01-01", "11", "10.5")}}},
		Normalizer: normalizer.New(nil),
		Loader:     ldr,
		Guard:      grd,
		Runs:       repo.NewSyncRuns(repo.NewBase(db)),
	})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), Request{AccountID: "act_1", Breakdowns: []enums.BreakdownGroup{enums.BreakdownCountry}})
	require.NoError(t, err)

	var finished string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "sync run finished") {
			finished = line
		}
	}
	require.NotEmpty(t, finished)
	require.Contains(t, finished, `"stage":"load_facts"`)
	require.Equal(t, 1, strings.Count(finished, `"stage"`), "stage stamps must replace each other, not accumulate")
}

func TestRun_RequestValidation(t *testing.T) {
	db := newTestDB(t)
	createWarehouse(t, db)
	o := newTestOrchestrator(t, db, &fakeFetcher{})

	_, err := o.Run(context.Background(), Request{})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeValidation, appErr.Code())

	var count int64
	require.NoError(t, db.Table("sync_runs").Count(&count).Error)
	require.Zero(t, count, "invalid requests must not create run records")
}
