package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/adsynchq/adsync-backend/internal/etl/fetcher"
	"github.com/adsynchq/adsync-backend/internal/etl/normalizer"
	"github.com/adsynchq/adsync-backend/internal/etl/progress"
	"github.com/adsynchq/adsync-backend/internal/repo"
	"github.com/adsynchq/adsync-backend/internal/warehouse/guard"
	"github.com/adsynchq/adsync-backend/internal/warehouse/loader"
	"github.com/adsynchq/adsync-backend/internal/warehouse/resolver"
	"github.com/adsynchq/adsync-backend/pkg/config"
	"github.com/adsynchq/adsync-backend/pkg/db/models"
	"github.com/adsynchq/adsync-backend/pkg/enums"
	pkgerrors "github.com/adsynchq/adsync-backend/pkg/errors"
	"github.com/adsynchq/adsync-backend/pkg/logger"
	"github.com/adsynchq/adsync-backend/pkg/metrics"
)

var validate = validator.New()

// Request triggers one sync run for an ad account.
type Request struct {
	AccountID    string                 `json:"account_id" validate:"required"`
	LookbackDays int                    `json:"lookback_days" validate:"gte=0"`
	Breakdowns   []enums.BreakdownGroup `json:"breakdowns"`
}

// Summary is the run-level report returned to the caller and persisted
// on the run record.
type Summary struct {
	RunID        string
	Status       enums.RunStatus
	TablesLoaded int
	RowsPerTable map[string]int
	FailedChunks int
	FailedTables int
	Error        string
}

type rangeFetcher interface {
	FetchRange(ctx context.Context, accountID string, breakdown enums.BreakdownGroup, since, until time.Time) (fetcher.Result, error)
}

// Params collects the orchestrator's collaborators.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	Metrics    *metrics.ETLMetrics
	DB         *gorm.DB
	Fetcher    rangeFetcher
	Normalizer *normalizer.Normalizer
	Loader     *loader.Loader
	Guard      *guard.Guard
	Runs       repo.SyncRuns
	Progress   *progress.Emitter
}

// Orchestrator drives one run through the pipeline stages. The core and
// breakdown fetches run concurrently with each other and parallelize
// internally; every load-time stage runs strictly after the guard has
// established its dimension guarantees.
type Orchestrator struct {
	cfg      *config.Config
	logger   *logger.Logger
	metrics  *metrics.ETLMetrics
	db       *gorm.DB
	fetcher  rangeFetcher
	norm     *normalizer.Normalizer
	loader   *loader.Loader
	guard    *guard.Guard
	runs     repo.SyncRuns
	progress *progress.Emitter
}

func New(params Params) (*Orchestrator, error) {
	if params.Config == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "config is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db handle is required")
	}
	if params.Fetcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fetcher is required")
	}
	if params.Normalizer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "normalizer is required")
	}
	if params.Loader == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loader is required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guard is required")
	}

	return &Orchestrator{
		cfg:      params.Config,
		logger:   params.Logger,
		metrics:  params.Metrics,
		db:       params.DB,
		fetcher:  params.Fetcher,
		norm:     params.Normalizer,
		loader:   params.Loader,
		guard:    params.Guard,
		runs:     params.Runs,
		progress: params.Progress,
	}, nil
}

// run bundles the per-run mutable state threaded through the stages.
type run struct {
	runID      string
	accountID  string
	breakdowns []enums.BreakdownGroup
	since      time.Time
	until      time.Time
	startedAt  time.Time

	failedChunks int
	failedTables int
	rowCounts    map[string]int
	tablesLoaded int
	loadErr      error
}

// Run executes the full pipeline for one account and reports a summary.
// Partial failures (abandoned chunks, failed tables) degrade the status
// to partial; only validation errors and fatal schema errors return an
// error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Summary, error) {
	if err := validate.Struct(req); err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sync request")
	}

	lookback := req.LookbackDays
	if lookback <= 0 {
		lookback = o.cfg.ETL.LookbackDays
	}
	if max := o.cfg.ETL.MaxLookbackDays; max > 0 && lookback > max {
		lookback = max
	}
	breakdowns := req.Breakdowns
	if len(breakdowns) == 0 {
		breakdowns = enums.AllBreakdownGroups()
	}

	until := time.Now().UTC().Truncate(24 * time.Hour)
	state := &run{
		accountID:  req.AccountID,
		breakdowns: breakdowns,
		since:      until.AddDate(0, 0, -(lookback - 1)),
		until:      until,
		startedAt:  time.Now().UTC(),
		rowCounts:  map[string]int{},
	}

	stored, err := o.runs.Start(ctx, req.AccountID, lookback, breakdowns)
	if err != nil {
		return Summary{}, err
	}
	state.runID = stored.ID.String()

	ctx = o.logger.WithRunID(ctx, state.runID)
	ctx = o.logger.WithAccountID(ctx, req.AccountID)
	o.logger.Info(o.logger.WithFields(ctx, map[string]any{
		"lookback_days": lookback,
		"breakdowns":    len(breakdowns),
	}), "sync run started")
	o.emit(ctx, state, enums.StageInit, "")

	summary, err := o.execute(ctx, stored, state)
	o.observeOutcome(req.AccountID, summary.Status, state.startedAt)
	return summary, err
}

func (o *Orchestrator) execute(ctx context.Context, stored *models.SyncRun, state *run) (Summary, error) {
	// Each stage context derives from the run context so the stamped
	// stage field replaces the previous one instead of piling up.
	base := ctx

	// FETCH_CORE and FETCH_BREAKDOWNS are independent of each other, so
	// they run concurrently. Both stage transitions are persisted before
	// the fetches start; the run record reads FETCH_BREAKDOWNS while
	// either fetch is in flight.
	ctx = o.advance(base, stored, state, enums.StageFetchCore)
	ctx = o.advance(base, stored, state, enums.StageFetchBreakdowns)

	groups := append([]enums.BreakdownGroup{enums.BreakdownGroup("")}, state.breakdowns...)
	results := make([]fetcher.Result, len(groups))
	fetchErrs := make([]error, len(groups))
	var wg sync.WaitGroup
	for i, group := range groups {
		wg.Add(1)
		go func(i int, group enums.BreakdownGroup) {
			defer wg.Done()
			results[i], fetchErrs[i] = o.fetcher.FetchRange(ctx, state.accountID, group, state.since, state.until)
		}(i, group)
	}
	wg.Wait()
	for _, err := range fetchErrs {
		if err != nil {
			return o.abort(ctx, stored, state, err)
		}
	}

	coreRes := results[0]
	state.failedChunks += coreRes.FailedChunks
	byGroup := map[enums.BreakdownGroup][]record{}
	for i, group := range state.breakdowns {
		state.failedChunks += results[i+1].FailedChunks
		byGroup[group] = parseRecords(results[i+1].Rows, o.norm)
	}

	// NORMALIZE
	ctx = o.advance(base, stored, state, enums.StageNormalize)
	core := parseRecords(coreRes.Rows, o.norm)
	placement := byGroup[enums.BreakdownPlacement]
	ageGender := byGroup[enums.BreakdownAgeGender]
	country := byGroup[enums.BreakdownCountry]

	// RESOLVE_DIMENSIONS
	ctx = o.advance(base, stored, state, enums.StageResolveDimensions)
	cache, err := resolver.NewCache(o.db, o.logger)
	if err != nil {
		return o.abort(ctx, stored, state, err)
	}
	members := collectEntityMembers(core, placement, ageGender, country)
	attributes := collectAttributeNames(core, placement, ageGender, country)
	dateKeys := collectDateKeys(core, placement, ageGender, country)

	// GUARD_INTEGRITY
	ctx = o.advance(base, stored, state, enums.StageGuardIntegrity)
	if err := o.guard.EnsureDates(ctx, dateKeys); err != nil {
		return o.abort(ctx, stored, state, err)
	}
	if err := o.guard.EnsureUnknownMembers(ctx); err != nil {
		return o.abort(ctx, stored, state, err)
	}
	o.discover(ctx, members, attributes)
	if err := cache.WarmUp(ctx); err != nil {
		// Unwarmed dimensions resolve to the sentinel; the load still runs.
		o.logger.Error(ctx, "dimension cache warm-up failed", err)
	}

	// LOAD_FACTS
	ctx = o.advance(base, stored, state, enums.StageLoadFacts)
	o.loadTable(ctx, state, buildCoreBatch(core))
	o.loadTable(ctx, state, buildPlacementBatch(ctx, placement, cache))
	o.loadTable(ctx, state, buildAgeGenderBatch(ctx, ageGender, cache))
	o.loadTable(ctx, state, buildCountryBatch(ctx, country, cache))
	o.loadTable(ctx, state, buildActionBatch(ctx, core, cache))

	// DONE
	status := enums.RunStatusSucceeded
	if state.failedChunks > 0 || state.failedTables > 0 {
		status = enums.RunStatusPartial
	}
	summary := Summary{
		RunID:        state.runID,
		Status:       status,
		TablesLoaded: state.tablesLoaded,
		RowsPerTable: state.rowCounts,
		FailedChunks: state.failedChunks,
		FailedTables: state.failedTables,
	}
	if state.loadErr != nil {
		summary.Error = state.loadErr.Error()
	}

	o.finish(ctx, stored, repo.Outcome{
		Status:       status,
		Stage:        enums.StageDone,
		FailedChunks: state.failedChunks,
		FailedTables: state.failedTables,
		RowCounts:    state.rowCounts,
		Error:        summary.Error,
	})
	o.emitFinal(ctx, state, enums.StageDone, status, summary.Error)
	o.logger.Info(o.logger.WithFields(ctx, map[string]any{
		"status":        status.String(),
		"tables_loaded": state.tablesLoaded,
		"failed_chunks": state.failedChunks,
		"failed_tables": state.failedTables,
	}), "sync run finished")
	return summary, nil
}

func (o *Orchestrator) loadTable(ctx context.Context, state *run, batch loader.Batch) {
	res, err := o.loader.Load(ctx, batch)
	if err != nil {
		state.failedTables++
		state.loadErr = multierr.Append(state.loadErr, fmt.Errorf("%s: %w", batch.Table, err))
		o.metrics.IncTableFailure(batch.Table)
		o.logger.Error(o.logger.WithField(ctx, "table", batch.Table), "table load failed", err)
		return
	}
	state.tablesLoaded++
	state.rowCounts[batch.Table] = res.RowsLoaded
	o.metrics.AddRowsLoaded(batch.Table, res.RowsLoaded)
}

func (o *Orchestrator) discover(ctx context.Context, members entityMemberSet, attributes map[enums.DimensionKind][]string) {
	entityTargets := []struct {
		table   string
		keyCol  string
		members []guard.EntityMember
	}{
		{"dim_campaign", "campaign_id", members.Campaigns},
		{"dim_adset", "adset_id", members.AdSets},
		{"dim_ad", "ad_id", members.Ads},
		{"dim_creative", "creative_id", members.Creatives},
	}
	for _, target := range entityTargets {
		if err := o.guard.DiscoverEntities(ctx, target.table, target.keyCol, target.members); err != nil {
			// Undiscovered members leave their facts on the sentinel key.
			o.logger.Error(o.logger.WithField(ctx, "table", target.table), "entity discovery failed", err)
		}
	}
	for kind, names := range attributes {
		if err := o.guard.DiscoverAttributes(ctx, kind, names); err != nil {
			o.logger.Error(o.logger.WithField(ctx, "dimension", kind.String()), "attribute discovery failed", err)
		}
	}
}

func (o *Orchestrator) abort(ctx context.Context, stored *models.SyncRun, state *run, cause error) (Summary, error) {
	o.logger.Error(ctx, "sync run aborted", cause)
	o.finish(ctx, stored, repo.Outcome{
		Status:       enums.RunStatusAborted,
		Stage:        enums.StageFailed,
		FailedChunks: state.failedChunks,
		FailedTables: state.failedTables,
		RowCounts:    state.rowCounts,
		Error:        cause.Error(),
	})
	o.emitFinal(ctx, state, enums.StageFailed, enums.RunStatusAborted, cause.Error())

	return Summary{
		RunID:        state.runID,
		Status:       enums.RunStatusAborted,
		TablesLoaded: state.tablesLoaded,
		RowsPerTable: state.rowCounts,
		FailedChunks: state.failedChunks,
		FailedTables: state.failedTables,
		Error:        cause.Error(),
	}, cause
}

// advance persists the stage transition and stamps the stage onto the
// log context carried through the rest of the run.
func (o *Orchestrator) advance(ctx context.Context, stored *models.SyncRun, state *run, stage enums.RunStage) context.Context {
	ctx = o.logger.WithStage(ctx, stage.String())
	if err := o.runs.SetStage(ctx, stored.ID, stage); err != nil {
		o.logger.Warn(ctx, "failed to persist stage transition")
	}
	o.emit(ctx, state, stage, "")
	return ctx
}

func (o *Orchestrator) finish(ctx context.Context, stored *models.SyncRun, outcome repo.Outcome) {
	if err := o.runs.Finish(ctx, stored.ID, outcome); err != nil {
		o.logger.Error(ctx, "failed to persist run outcome", err)
	}
}

func (o *Orchestrator) emit(ctx context.Context, state *run, stage enums.RunStage, errText string) {
	o.progress.Emit(ctx, progress.Event{
		RunID:        state.runID,
		AccountID:    state.accountID,
		Stage:        stage,
		FailedChunks: state.failedChunks,
		Error:        errText,
	})
}

func (o *Orchestrator) emitFinal(ctx context.Context, state *run, stage enums.RunStage, status enums.RunStatus, errText string) {
	o.progress.Emit(ctx, progress.Event{
		RunID:        state.runID,
		AccountID:    state.accountID,
		Stage:        stage,
		Status:       status.String(),
		FailedChunks: state.failedChunks,
		FailedTables: state.failedTables,
		RowCounts:    state.rowCounts,
		Error:        errText,
	})
}

func (o *Orchestrator) observeOutcome(accountID string, status enums.RunStatus, startedAt time.Time) {
	o.metrics.ObserveRunDuration(accountID, time.Since(startedAt))
	o.metrics.IncRunOutcome(status.String())
}
