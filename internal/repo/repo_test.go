package repo

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/adsynchq/adsync-backend/pkg/enums"
	pkgerrors "github.com/adsynchq/adsync-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	err = conn.Exec(`CREATE TABLE sync_runs (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		status TEXT NOT NULL,
		stage TEXT NOT NULL,
		lookback_days INTEGER NOT NULL,
		breakdowns TEXT,
		failed_chunks INTEGER NOT NULL DEFAULT 0,
		failed_tables INTEGER NOT NULL DEFAULT 0,
		row_counts BLOB,
		error TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	)`).Error
	if err != nil {
		t.Fatalf("failed to create sync_runs: %v", err)
	}
	return conn
}

func TestNewBaseStoresConnection(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	if base.db != db {
		t.Fatalf("expected base db to match provided connection")
	}
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.Background()
	withCtx := base.DB(ctx)
	if withCtx == nil || withCtx.Statement == nil {
		t.Fatalf("expected statement created after WithContext")
	}
	if withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through, got %v", withCtx.Statement.Context)
	}

	if base.DB(nil) != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestSyncRuns_Lifecycle(t *testing.T) {
	runs := NewSyncRuns(NewBase(newTestDB(t)))
	ctx := context.Background()

	run, err := runs.Start(ctx, "act_1", 90, []enums.BreakdownGroup{enums.BreakdownPlacement, enums.BreakdownCountry})
	require.NoError(t, err)
	require.Equal(t, enums.RunStatusRunning, run.Status)
	require.Equal(t, enums.StageInit, run.Stage)

	require.NoError(t, runs.SetStage(ctx, run.ID, enums.StageLoadFacts))

	err = runs.Finish(ctx, run.ID, Outcome{
		Status:       enums.RunStatusPartial,
		Stage:        enums.StageDone,
		FailedChunks: 2,
		RowCounts:    map[string]int{"fact_core_metrics": 120},
		Error:        "2 chunks abandoned",
	})
	require.NoError(t, err)

	latest, err := runs.Latest(ctx, "act_1")
	require.NoError(t, err)
	require.Equal(t, run.ID, latest.ID)
	require.Equal(t, enums.RunStatusPartial, latest.Status)
	require.Equal(t, 2, latest.FailedChunks)
	require.NotNil(t, latest.FinishedAt)
	require.NotNil(t, latest.Error)
	require.Contains(t, string(latest.RowCounts), "fact_core_metrics")
}

func TestSyncRuns_LatestNotFound(t *testing.T) {
	runs := NewSyncRuns(NewBase(newTestDB(t)))

	_, err := runs.Latest(context.Background(), "act_missing")
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeNotFound, appErr.Code())
}
