package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/adsynchq/adsync-backend/pkg/enums"
)

// SyncRun records one pipeline execution for operator visibility. Loads are
// idempotent, so failed or partial runs heal by re-running.
type SyncRun struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	AccountID    string          `gorm:"column:account_id;not null"`
	Status       enums.RunStatus `gorm:"column:status;not null"`
	Stage        enums.RunStage  `gorm:"column:stage;not null"`
	LookbackDays int             `gorm:"column:lookback_days;not null"`
	Breakdowns   pq.StringArray  `gorm:"column:breakdowns;type:text[]"`
	FailedChunks int             `gorm:"column:failed_chunks;not null;default:0"`
	FailedTables int             `gorm:"column:failed_tables;not null;default:0"`
	RowCounts    []byte          `gorm:"column:row_counts;type:jsonb"`
	Error        *string         `gorm:"column:error"`
	StartedAt    time.Time       `gorm:"column:started_at;not null"`
	FinishedAt   *time.Time      `gorm:"column:finished_at"`
}

func (SyncRun) TableName() string { return "sync_runs" }
