package progress

import (
	"context"
	"encoding/json"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/adsynchq/adsync-backend/pkg/enums"
	"github.com/adsynchq/adsync-backend/pkg/logger"
)

const publishTimeout = 10 * time.Second

// Event is one pipeline progress notification. Consumers key on run_id;
// concurrent runs for different accounts never share state through the
// emitter.
type Event struct {
	RunID        string         `json:"run_id"`
	AccountID    string         `json:"account_id"`
	Stage        enums.RunStage `json:"stage"`
	Status       string         `json:"status,omitempty"`
	FailedChunks int            `json:"failed_chunks,omitempty"`
	FailedTables int            `json:"failed_tables,omitempty"`
	RowCounts    map[string]int `json:"row_counts,omitempty"`
	Error        string         `json:"error,omitempty"`
	EmittedAt    time.Time      `json:"emitted_at"`
}

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type publisherAdapter struct {
	inner *gcppubsub.Publisher
}

func (p publisherAdapter) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.inner.Publish(ctx, msg)
}

// Emitter publishes stage transitions to the progress topic. Emission is
// best effort: a publish failure is logged and never fails the run.
type Emitter struct {
	publisher publisher
	logger    *logger.Logger
}

// New builds an Emitter. A nil publisher yields a no-op emitter so the
// one-shot CLI can run without Pub/Sub wiring.
func New(pub *gcppubsub.Publisher, logg *logger.Logger) *Emitter {
	e := &Emitter{logger: logg}
	if pub != nil {
		e.publisher = publisherAdapter{inner: pub}
	}
	return e
}

func newWithPublisher(pub publisher, logg *logger.Logger) *Emitter {
	return &Emitter{publisher: pub, logger: logg}
}

// Emit publishes one progress event and waits for the server ack.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if e == nil || e.publisher == nil {
		return
	}
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		e.warn(ctx, event, "marshal progress event failed")
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := e.publisher.Publish(publishCtx, &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"run_id":     event.RunID,
			"account_id": event.AccountID,
			"stage":      event.Stage.String(),
		},
	})
	if _, err := result.Get(publishCtx); err != nil {
		e.warn(ctx, event, "publish progress event failed")
	}
}

func (e *Emitter) warn(ctx context.Context, event Event, msg string) {
	if e.logger == nil {
		return
	}
	e.logger.Warn(e.logger.WithFields(ctx, map[string]any{
		"run_id": event.RunID,
		"stage":  event.Stage.String(),
	}), msg)
}
