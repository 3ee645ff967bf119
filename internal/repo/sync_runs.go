package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/adsynchq/adsync-backend/pkg/db/models"
	"github.com/adsynchq/adsync-backend/pkg/enums"
	pkgerrors "github.com/adsynchq/adsync-backend/pkg/errors"
)

// SyncRuns persists pipeline run records.
type SyncRuns struct {
	Base
}

func NewSyncRuns(base Base) SyncRuns {
	return SyncRuns{Base: base}
}

// Start inserts a new running record and returns it.
func (r SyncRuns) Start(ctx context.Context, accountID string, lookbackDays int, breakdowns []enums.BreakdownGroup) (*models.SyncRun, error) {
	names := make(pq.StringArray, len(breakdowns))
	for i, b := range breakdowns {
		names[i] = b.String()
	}

	run := &models.SyncRun{
		ID:           uuid.New(),
		AccountID:    accountID,
		Status:       enums.RunStatusRunning,
		Stage:        enums.StageInit,
		LookbackDays: lookbackDays,
		Breakdowns:   names,
		StartedAt:    time.Now().UTC(),
	}
	if err := r.DB(ctx).Create(run).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert sync run")
	}
	return run, nil
}

// SetStage records the stage the run just entered.
func (r SyncRuns) SetStage(ctx context.Context, id uuid.UUID, stage enums.RunStage) error {
	err := r.DB(ctx).
		Model(&models.SyncRun{}).
		Where("id = ?", id).
		Update("stage", stage).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update sync run stage")
	}
	return nil
}

// Outcome is the terminal state written when a run ends.
type Outcome struct {
	Status       enums.RunStatus
	Stage        enums.RunStage
	FailedChunks int
	FailedTables int
	RowCounts    map[string]int
	Error        string
}

// Finish marks the run terminal with its summary counters.
func (r SyncRuns) Finish(ctx context.Context, id uuid.UUID, outcome Outcome) error {
	updates := map[string]any{
		"status":        outcome.Status,
		"stage":         outcome.Stage,
		"failed_chunks": outcome.FailedChunks,
		"failed_tables": outcome.FailedTables,
		"finished_at":   time.Now().UTC(),
	}
	if outcome.Error != "" {
		updates["error"] = outcome.Error
	}
	if len(outcome.RowCounts) > 0 {
		encoded, err := json.Marshal(outcome.RowCounts)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode row counts")
		}
		updates["row_counts"] = encoded
	}

	err := r.DB(ctx).
		Model(&models.SyncRun{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finish sync run")
	}
	return nil
}

// Latest returns the most recent run for an account, if any.
func (r SyncRuns) Latest(ctx context.Context, accountID string) (*models.SyncRun, error) {
	var run models.SyncRun
	err := r.DB(ctx).
		Where("account_id = ?", accountID).
		Order("started_at DESC").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no runs for account")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query latest sync run")
	}
	return &run, nil
}
