package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/adsynchq/adsync-backend/pkg/adsapi"
	"github.com/adsynchq/adsync-backend/pkg/config"
	"github.com/adsynchq/adsync-backend/pkg/enums"
	pkgerrors "github.com/adsynchq/adsync-backend/pkg/errors"
	"github.com/adsynchq/adsync-backend/pkg/logger"
	"github.com/adsynchq/adsync-backend/pkg/metrics"
)

const (
	chunkOutcomeOK     = "ok"
	chunkOutcomeFailed = "failed"
)

// Chunk is one inclusive date window of a fetch request.
type Chunk struct {
	Since time.Time
	Until time.Time
}

// SplitRange cuts an inclusive date range into chunks of at most
// chunkDays days each.
func SplitRange(since, until time.Time, chunkDays int) []Chunk {
	if chunkDays <= 0 {
		chunkDays = 1
	}
	since = truncateDay(since)
	until = truncateDay(until)
	if until.Before(since) {
		return nil
	}

	var chunks []Chunk
	for cursor := since; !cursor.After(until); cursor = cursor.AddDate(0, 0, chunkDays) {
		end := cursor.AddDate(0, 0, chunkDays-1)
		if end.After(until) {
			end = until
		}
		chunks = append(chunks, Chunk{Since: cursor, Until: end})
	}
	return chunks
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type insightsClient interface {
	GetInsights(ctx context.Context, params adsapi.InsightsParams) ([]adsapi.InsightRow, error)
}

// Result carries everything a range fetch produced, including how many
// chunks were abandoned after exhausting their retry budget.
type Result struct {
	Rows         []adsapi.InsightRow
	FailedChunks int
}

// Fetcher pulls insight rows chunk by chunk through a bounded worker
// pool, retrying each chunk on retryable upstream errors.
type Fetcher struct {
	client  insightsClient
	cfg     config.ETLConfig
	logger  *logger.Logger
	metrics *metrics.ETLMetrics
}

func New(client insightsClient, cfg config.ETLConfig, logg *logger.Logger, m *metrics.ETLMetrics) (*Fetcher, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "insights client is required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	if cfg.ChunkDays <= 0 {
		cfg.ChunkDays = 30
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	return &Fetcher{client: client, cfg: cfg, logger: logg, metrics: m}, nil
}

// FetchRange fetches every chunk of the window concurrently and returns
// the union of their rows. Chunk order is not preserved; the loader
// merges overlaps by grain. A chunk that exhausts its retries is
// dropped and counted, never fatal.
func (f *Fetcher) FetchRange(ctx context.Context, accountID string, breakdown enums.BreakdownGroup, since, until time.Time) (Result, error) {
	chunks := SplitRange(since, until, f.cfg.ChunkDays)
	if len(chunks) == 0 {
		return Result{}, nil
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result Result
	)
	slots := make(chan struct{}, f.cfg.FetchWorkers)

	for _, chunk := range chunks {
		wg.Add(1)
		slots <- struct{}{}
		go func(chunk Chunk) {
			defer wg.Done()
			defer func() { <-slots }()

			rows, err := f.fetchChunk(ctx, accountID, breakdown, chunk)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.FailedChunks++
				f.metrics.IncChunk(chunkOutcomeFailed)
				f.logger.Error(f.logger.WithFields(ctx, map[string]any{
					"account_id": accountID,
					"breakdown":  breakdown.String(),
					"since":      chunk.Since.Format("2006-01-02"),
					"until":      chunk.Until.Format("2006-01-02"),
				}), "chunk abandoned after retries", err)
				return
			}
			f.metrics.IncChunk(chunkOutcomeOK)
			result.Rows = append(result.Rows, rows...)
		}(chunk)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fetch canceled")
	}
	return result, nil
}

func (f *Fetcher) fetchChunk(ctx context.Context, accountID string, breakdown enums.BreakdownGroup, chunk Chunk) ([]adsapi.InsightRow, error) {
	params := adsapi.InsightsParams{
		AccountID: accountID,
		Since:     chunk.Since,
		Until:     chunk.Until,
		Breakdown: breakdown,
	}

	backoff := retry.WithMaxRetries(uint64(f.cfg.MaxAttempts-1), retry.NewExponential(f.cfg.BackoffBase))

	var rows []adsapi.InsightRow
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		fetched, err := f.client.GetInsights(ctx, params)
		if err != nil {
			if pkgerrors.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		rows = fetched
		return nil
	})
	return rows, err
}
