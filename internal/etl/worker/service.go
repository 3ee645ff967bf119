package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/adsynchq/adsync-backend/internal/etl/orchestrator"
	"github.com/adsynchq/adsync-backend/pkg/enums"
	pkgerrors "github.com/adsynchq/adsync-backend/pkg/errors"
	"github.com/adsynchq/adsync-backend/pkg/logger"
)

// TriggerMessage is the Pub/Sub payload that requests a sync run.
type TriggerMessage struct {
	AccountID    string   `json:"account_id"`
	LookbackDays int      `json:"lookback_days"`
	Breakdowns   []string `json:"breakdowns"`
}

type runner interface {
	Run(ctx context.Context, req orchestrator.Request) (orchestrator.Summary, error)
}

type runLocker interface {
	AcquireRunLock(ctx context.Context, accountID, runID string) (bool, error)
	ReleaseRunLock(ctx context.Context, accountID, runID string) error
}

// Service consumes sync triggers from Pub/Sub. A Redis lock keyed by
// account makes sure at most one run per account is in flight.
type Service struct {
	subscription *gcppubsub.Subscriber
	runner       runner
	locks        runLocker
	logg         *logger.Logger
}

func NewService(subscription *gcppubsub.Subscriber, run runner, locks runLocker, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("sync subscription is required")
	}
	if run == nil {
		return nil, errors.New("orchestrator is required")
	}
	if locks == nil {
		return nil, errors.New("run locker is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, runner: run, locks: locks, logg: logg}, nil
}

type processResult struct {
	nack bool
}

// Run consumes sync triggers until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	logCtx := s.logg.WithField(ctx, "message_id", msg.ID)

	req, err := s.buildRequest(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "invalid sync trigger dropped")
		return processResult{}
	}
	logCtx = s.logg.WithAccountID(logCtx, req.AccountID)

	lockToken := uuid.NewString()
	acquired, err := s.locks.AcquireRunLock(logCtx, req.AccountID, lockToken)
	if err != nil {
		s.logg.Error(logCtx, "run lock acquisition failed", err)
		return processResult{nack: true}
	}
	if !acquired {
		// Loads are idempotent; the in-flight run covers this trigger.
		s.logg.Info(logCtx, "sync already in progress for account")
		return processResult{}
	}
	defer func() {
		if err := s.locks.ReleaseRunLock(logCtx, req.AccountID, lockToken); err != nil {
			s.logg.Error(logCtx, "run lock release failed", err)
		}
	}()

	summary, err := s.runner.Run(logCtx, req)
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeValidation {
			s.logg.Warn(logCtx, "sync request rejected")
			return processResult{}
		}
		s.logg.Error(logCtx, "sync run failed", err)
		return processResult{nack: true}
	}

	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"run_id":        summary.RunID,
		"status":        summary.Status.String(),
		"tables_loaded": summary.TablesLoaded,
		"failed_chunks": summary.FailedChunks,
	}), "sync trigger handled")
	return processResult{}
}

func (s *Service) buildRequest(msg *gcppubsub.Message) (orchestrator.Request, error) {
	var trigger TriggerMessage
	if err := json.Unmarshal(msg.Data, &trigger); err != nil {
		return orchestrator.Request{}, fmt.Errorf("decode sync trigger: %w", err)
	}

	trigger.AccountID = strings.TrimSpace(trigger.AccountID)
	if trigger.AccountID == "" {
		return orchestrator.Request{}, errors.New("account_id missing")
	}
	if trigger.LookbackDays < 0 {
		return orchestrator.Request{}, fmt.Errorf("lookback_days %d is negative", trigger.LookbackDays)
	}

	breakdowns := make([]enums.BreakdownGroup, 0, len(trigger.Breakdowns))
	for _, raw := range trigger.Breakdowns {
		group, err := enums.ParseBreakdownGroup(raw)
		if err != nil {
			return orchestrator.Request{}, fmt.Errorf("breakdowns: %w", err)
		}
		breakdowns = append(breakdowns, group)
	}

	return orchestrator.Request{
		AccountID:    trigger.AccountID,
		LookbackDays: trigger.LookbackDays,
		Breakdowns:   breakdowns,
	}, nil
}
