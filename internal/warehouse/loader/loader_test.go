package loader

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

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

func newTestLoader(t *testing.T) (*Loader, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	l, err := New(db, logg)
	require.NoError(t, err)
	return l, db
}

func createMetricsTable(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Exec(`CREATE TABLE fact_test_metrics (
		date_key    INTEGER NOT NULL,
		campaign_id INTEGER NOT NULL,
		spend       REAL NOT NULL DEFAULT 0,
		clicks      INTEGER NOT NULL DEFAULT 0,
		account_id  TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (date_key, campaign_id)
	)`).Error
	require.NoError(t, err)
}

func metricsBatch(rows []map[string]any) Batch {
	return Batch{
		Table:        "fact_test_metrics",
		GrainCols:    []string{"date_key", "campaign_id"},
		AdditiveCols: []string{"spend", "clicks"},
		Rows:         rows,
	}
}

type metricsRow struct {
	DateKey    int64
	CampaignID int64
	Spend      float64
	Clicks     int64
	AccountID  string
}

func readMetrics(t *testing.T, db *gorm.DB) []metricsRow {
	t.Helper()
	var rows []metricsRow
	err := db.Table("fact_test_metrics").Order("date_key, campaign_id").Find(&rows).Error
	require.NoError(t, err)
	return rows
}

func TestLoad_InsertAndOverwrite(t *testing.T) {
	l, db := newTestLoader(t)
	createMetricsTable(t, db)
	ctx := context.Background()

	res, err := l.Load(ctx, metricsBatch([]map[string]any{
		{"date_key": 20240101, "campaign_id": 5, "spend": 10.0, "clicks": int64(3), "account_id": "act_1"},
		{"date_key": 20240102, "campaign_id": 5, "spend": 4.0, "clicks": int64(1), "account_id": "act_1"},
	}))
	require.NoError(t, err)
	require.Equal(t, 2, res.RowsLoaded)

	// A re-load of the same grain overwrites in place rather than appending.
	res, err = l.Load(ctx, metricsBatch([]map[string]any{
		{"date_key": 20240101, "campaign_id": 5, "spend": 12.5, "clicks": int64(4), "account_id": "act_1"},
	}))
	require.NoError(t, err)
	require.Equal(t, 1, res.RowsLoaded)

	rows := readMetrics(t, db)
	require.Len(t, rows, 2)
	require.Equal(t, 12.5, rows[0].Spend)
	require.Equal(t, int64(4), rows[0].Clicks)
	require.Equal(t, 4.0, rows[1].Spend)
}

func TestLoad_Idempotent(t *testing.T) {
	l, db := newTestLoader(t)
	createMetricsTable(t, db)
	ctx := context.Background()

	batchRows := func() []map[string]any {
		return []map[string]any{
			{"date_key": 20240101, "campaign_id": 5, "spend": 10.0, "clicks": int64(3), "account_id": "act_1"},
			{"date_key": 20240101, "campaign_id": 6, "spend": 2.0, "clicks": int64(1), "account_id": "act_1"},
		}
	}

	_, err := l.Load(ctx, metricsBatch(batchRows()))
	require.NoError(t, err)
	_, err = l.Load(ctx, metricsBatch(batchRows()))
	require.NoError(t, err)

	rows := readMetrics(t, db)
	require.Len(t, rows, 2)
	require.Equal(t, 10.0, rows[0].Spend)
	require.Equal(t, int64(3), rows[0].Clicks)
}

func TestLoad_MergesDuplicateGrains(t *testing.T) {
	l, db := newTestLoader(t)
	createMetricsTable(t, db)

	// Overlapping fetch chunks can both report the same day.
	res, err := l.Load(context.Background(), metricsBatch([]map[string]any{
		{"date_key": 20240101, "campaign_id": 5, "spend": 10.0, "clicks": int64(2), "account_id": "act_1"},
		{"date_key": 20240101, "campaign_id": 5, "spend": 15.0, "clicks": int64(3), "account_id": "act_2"},
	}))
	require.NoError(t, err)
	require.Equal(t, 1, res.RowsLoaded)
	require.Equal(t, 1, res.MergedDuplicates)

	rows := readMetrics(t, db)
	require.Len(t, rows, 1)
	require.Equal(t, 25.0, rows[0].Spend)
	require.Equal(t, int64(5), rows[0].Clicks)
	require.Equal(t, "act_1", rows[0].AccountID, "descriptive column keeps the first seen value")
}

func TestLoad_DropsIncompleteGrains(t *testing.T) {
	l, db := newTestLoader(t)
	createMetricsTable(t, db)

	res, err := l.Load(context.Background(), metricsBatch([]map[string]any{
		{"date_key": 20240101, "campaign_id": nil, "spend": 10.0},
		{"date_key": 20240101, "spend": 3.0},
		{"date_key": 20240102, "campaign_id": 7, "spend": 5.0, "clicks": int64(1), "account_id": "act_1"},
	}))
	require.NoError(t, err)
	require.Equal(t, 2, res.DroppedNullGrain)
	require.Equal(t, 1, res.RowsLoaded)

	rows := readMetrics(t, db)
	require.Len(t, rows, 1)
	require.Equal(t, int64(20240102), rows[0].DateKey)
}

func TestLoad_DimensionReservedKeyRejected(t *testing.T) {
	l, db := newTestLoader(t)
	err := db.Exec(`CREATE TABLE dim_test (
		id   INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	)`).Error
	require.NoError(t, err)

	res, err := l.Load(context.Background(), Batch{
		Table:     "dim_test",
		Dimension: true,
		GrainCols: []string{"id"},
		Rows: []map[string]any{
			{"id": int64(0), "name": "not-the-sentinel"},
			{"id": int64(42), "name": "search"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.DroppedReserved)
	require.Equal(t, 1, res.RowsLoaded)

	var count int64
	require.NoError(t, db.Table("dim_test").Where("id = 0").Count(&count).Error)
	require.Zero(t, count)
}

func TestLoad_EmptyBatch(t *testing.T) {
	l, _ := newTestLoader(t)

	res, err := l.Load(context.Background(), metricsBatch(nil))
	require.NoError(t, err)
	require.Zero(t, res.RowsLoaded)
}

func TestLoad_Validation(t *testing.T) {
	l, _ := newTestLoader(t)

	_, err := l.Load(context.Background(), Batch{GrainCols: []string{"id"}})
	require.Error(t, err)

	_, err = l.Load(context.Background(), Batch{Table: "fact_test_metrics"})
	require.Error(t, err)
}

func TestMergeDuplicateGrains_SumsAdditive(t *testing.T) {
	rows, merged := mergeDuplicateGrains([]map[string]any{
		{"k": 1, "count": int64(2), "note": "first"},
		{"k": 1, "count": int64(3), "note": "second"},
		{"k": 2, "count": int64(7)},
	}, []string{"k"}, []string{"count"})

	require.Equal(t, 1, merged)
	require.Len(t, rows, 2)
	require.Equal(t, int64(5), rows[0]["count"])
	require.Equal(t, "first", rows[0]["note"])
}
