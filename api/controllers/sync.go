package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/adsynchq/adsync-backend/api/responses"
	"github.com/adsynchq/adsync-backend/api/validators"
	"github.com/adsynchq/adsync-backend/internal/etl/orchestrator"
	"github.com/adsynchq/adsync-backend/pkg/db/models"
	"github.com/adsynchq/adsync-backend/pkg/enums"
	pkgerrors "github.com/adsynchq/adsync-backend/pkg/errors"
	"github.com/adsynchq/adsync-backend/pkg/logger"
)

// SyncService runs one extraction pipeline to completion.
type SyncService interface {
	Run(ctx context.Context, req orchestrator.Request) (orchestrator.Summary, error)
}

// RunsRepository reads persisted run records.
type RunsRepository interface {
	Latest(ctx context.Context, accountID string) (*models.SyncRun, error)
}

type triggerSyncRequest struct {
	AccountID    string   `json:"account_id" validate:"required"`
	LookbackDays int      `json:"lookback_days" validate:"gte=0"`
	Breakdowns   []string `json:"breakdowns"`
}

type syncSummaryResponse struct {
	RunID        string         `json:"run_id"`
	Status       string         `json:"status"`
	TablesLoaded int            `json:"tables_loaded"`
	RowsPerTable map[string]int `json:"rows_per_table,omitempty"`
	FailedChunks int            `json:"failed_chunks"`
	FailedTables int            `json:"failed_tables"`
	Error        string         `json:"error,omitempty"`
}

type syncRunResponse struct {
	RunID        string         `json:"run_id"`
	AccountID    string         `json:"account_id"`
	Status       string         `json:"status"`
	Stage        string         `json:"stage"`
	LookbackDays int            `json:"lookback_days"`
	Breakdowns   []string       `json:"breakdowns"`
	FailedChunks int            `json:"failed_chunks"`
	FailedTables int            `json:"failed_tables"`
	RowCounts    map[string]int `json:"row_counts,omitempty"`
	Error        *string        `json:"error,omitempty"`
	StartedAt    string         `json:"started_at"`
	FinishedAt   *string        `json:"finished_at,omitempty"`
}

// TriggerSync runs a sync inline and reports the run summary. Operators use
// it for manual backfills; scheduled loads arrive through the worker instead.
func TriggerSync(svc SyncService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync service unavailable"))
			return
		}

		var body triggerSyncRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		groups := make([]enums.BreakdownGroup, 0, len(body.Breakdowns))
		for _, raw := range body.Breakdowns {
			group, err := enums.ParseBreakdownGroup(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid breakdown"))
				return
			}
			groups = append(groups, group)
		}

		summary, err := svc.Run(r.Context(), orchestrator.Request{
			AccountID:    strings.TrimSpace(body.AccountID),
			LookbackDays: body.LookbackDays,
			Breakdowns:   groups,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, syncSummaryResponse{
			RunID:        summary.RunID,
			Status:       string(summary.Status),
			TablesLoaded: summary.TablesLoaded,
			RowsPerTable: summary.RowsPerTable,
			FailedChunks: summary.FailedChunks,
			FailedTables: summary.FailedTables,
			Error:        summary.Error,
		})
	}
}

// LatestSync returns the most recent run record for an account.
func LatestSync(runs RunsRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runs == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "runs repository unavailable"))
			return
		}

		accountID := strings.TrimSpace(r.URL.Query().Get("account_id"))
		if accountID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "account_id is required"))
			return
		}

		run, err := runs.Latest(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, runToResponse(run))
	}
}

func runToResponse(run *models.SyncRun) syncRunResponse {
	resp := syncRunResponse{
		RunID:        run.ID.String(),
		AccountID:    run.AccountID,
		Status:       string(run.Status),
		Stage:        string(run.Stage),
		LookbackDays: run.LookbackDays,
		Breakdowns:   append([]string(nil), run.Breakdowns...),
		FailedChunks: run.FailedChunks,
		FailedTables: run.FailedTables,
		Error:        run.Error,
		StartedAt:    run.StartedAt.UTC().Format(time.RFC3339),
	}

	if len(run.RowCounts) > 0 {
		counts := map[string]int{}
		if err := json.Unmarshal(run.RowCounts, &counts); err == nil {
			resp.RowCounts = counts
		}
	}

	if run.FinishedAt != nil {
		finished := run.FinishedAt.UTC().Format(time.RFC3339)
		resp.FinishedAt = &finished
	}

	return resp
}
