package fetcher

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/adsynchq/adsync-backend/pkg/adsapi"
	"github.com/adsynchq/adsync-backend/pkg/config"
	"github.com/adsynchq/adsync-backend/pkg/enums"
	pkgerrors "github.com/adsynchq/adsync-backend/pkg/errors"
	"github.com/adsynchq/adsync-backend/pkg/logger"
)

func day(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSplitRange(t *testing.T) {
	chunks := SplitRange(day("2024-01-01"), day("2024-03-30"), 30)
	require.Len(t, chunks, 3)
	require.Equal(t, day("2024-01-01"), chunks[0].Since)
	require.Equal(t, day("2024-01-30"), chunks[0].Until)
	require.Equal(t, day("2024-01-31"), chunks[1].Since)
	require.Equal(t, day("2024-02-29"), chunks[1].Until)
	require.Equal(t, day("2024-03-01"), chunks[2].Since)
	require.Equal(t, day("2024-03-30"), chunks[2].Until)
}

func TestSplitRange_PartialTail(t *testing.T) {
	chunks := SplitRange(day("2024-01-01"), day("2024-01-10"), 7)
	require.Len(t, chunks, 2)
	require.Equal(t, day("2024-01-07"), chunks[0].Until)
	require.Equal(t, day("2024-01-08"), chunks[1].Since)
	require.Equal(t, day("2024-01-10"), chunks[1].Until)
}

func TestSplitRange_SingleDay(t *testing.T) {
	chunks := SplitRange(day("2024-01-01"), day("2024-01-01"), 30)
	require.Len(t, chunks, 1)
	require.Equal(t, chunks[0].Since, chunks[0].Until)
}

func TestSplitRange_InvertedRange(t *testing.T) {
	require.Empty(t, SplitRange(day("2024-02-01"), day("2024-01-01"), 30))
}

type fakeClient struct {
	mu    sync.Mutex
	calls int
	fn    func(params adsapi.InsightsParams) ([]adsapi.InsightRow, error)
}

func (f *fakeClient) GetInsights(_ context.Context, params adsapi.InsightsParams) ([]adsapi.InsightRow, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(params)
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() config.ETLConfig {
	return config.ETLConfig{
		ChunkDays:    30,
		FetchWorkers: 3,
		MaxAttempts:  3,
		BackoffBase:  time.Millisecond,
	}
}

func newTestFetcher(t *testing.T, client *fakeClient, cfg config.ETLConfig) *Fetcher {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	f, err := New(client, cfg, logg, nil)
	require.NoError(t, err)
	return f
}

func TestFetchRange_UnionOfChunks(t *testing.T) {
	client := &fakeClient{fn: func(params adsapi.InsightsParams) ([]adsapi.InsightRow, error) {
		return []adsapi.InsightRow{{DateStart: params.Since.Format("2006-01-02")}}, nil
	}}
	f := newTestFetcher(t, client, testConfig())

	res, err := f.FetchRange(context.Background(), "act_1", enums.BreakdownPlacement, day("2024-01-01"), day("2024-03-30"))
	require.NoError(t, err)
	require.Zero(t, res.FailedChunks)
	require.Len(t, res.Rows, 3)

	starts := map[string]bool{}
	for _, row := range res.Rows {
		starts[row.DateStart] = true
	}
	require.True(t, starts["2024-01-01"])
	require.True(t, starts["2024-01-31"])
	require.True(t, starts["2024-03-01"])
}

func TestFetchRange_FailedChunkDoesNotAbort(t *testing.T) {
	client := &fakeClient{fn: func(params adsapi.InsightsParams) ([]adsapi.InsightRow, error) {
		if params.Since.Equal(day("2024-01-31")) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "bad request")
		}
		return []adsapi.InsightRow{{DateStart: params.Since.Format("2006-01-02")}}, nil
	}}
	f := newTestFetcher(t, client, testConfig())

	res, err := f.FetchRange(context.Background(), "act_1", enums.BreakdownCountry, day("2024-01-01"), day("2024-03-30"))
	require.NoError(t, err)
	require.Equal(t, 1, res.FailedChunks)
	require.Len(t, res.Rows, 2)
}

func TestFetchRange_RetryBound(t *testing.T) {
	client := &fakeClient{fn: func(adsapi.InsightsParams) ([]adsapi.InsightRow, error) {
		return nil, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limited")
	}}
	f := newTestFetcher(t, client, testConfig())

	res, err := f.FetchRange(context.Background(), "act_1", enums.BreakdownPlacement, day("2024-01-01"), day("2024-01-10"))
	require.NoError(t, err)
	require.Equal(t, 1, res.FailedChunks)
	require.Empty(t, res.Rows)
	require.Equal(t, 3, client.callCount(), "a permanently failing chunk is attempted exactly MaxAttempts times")
}

func TestFetchRange_NonRetryableFailsFast(t *testing.T) {
	client := &fakeClient{fn: func(adsapi.InsightsParams) ([]adsapi.InsightRow, error) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown field")
	}}
	f := newTestFetcher(t, client, testConfig())

	res, err := f.FetchRange(context.Background(), "act_1", enums.BreakdownPlacement, day("2024-01-01"), day("2024-01-10"))
	require.NoError(t, err)
	require.Equal(t, 1, res.FailedChunks)
	require.Equal(t, 1, client.callCount())
}

func TestFetchRange_TransientThenSuccess(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	client := &fakeClient{}
	client.fn = func(params adsapi.InsightsParams) ([]adsapi.InsightRow, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			return nil, pkgerrors.New(pkgerrors.CodeTransient, "upstream hiccup")
		}
		return []adsapi.InsightRow{{DateStart: params.Since.Format("2006-01-02")}}, nil
	}
	f := newTestFetcher(t, client, testConfig())

	res, err := f.FetchRange(context.Background(), "act_1", enums.BreakdownPlacement, day("2024-01-01"), day("2024-01-10"))
	require.NoError(t, err)
	require.Zero(t, res.FailedChunks)
	require.Len(t, res.Rows, 1)
}
