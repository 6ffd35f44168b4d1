package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wms-platform/stock-engine/pkg/logging"
)

// Command is anything that can be executed at most once
type Command interface {
	GetCommandID() string
	GetCommandType() string
}

// HandlerFunc executes a command and returns its response
type HandlerFunc[C Command, R any] func(ctx context.Context, cmd C) (R, error)

// Behavior runs a handler under a command claim.
//
// Started: the handler runs; success completes the claim with the JSON encoded
// response, a returned error or a panic fails it (the panic is re-raised).
// InProgress: ErrCommandInProgress is returned without running the handler.
// AlreadyCompleted: the stored response is decoded and returned without running the handler.
// AlreadyFailed: a FailedError carrying the stored reason is returned without running the handler.
type Behavior[C Command, R any] struct {
	store   ClaimStore
	logger  *logging.Logger
	metrics *Metrics
	service string
}

// NewBehavior creates a Behavior. logger and metrics may be nil.
func NewBehavior[C Command, R any](store ClaimStore, logger *logging.Logger, metrics *Metrics) *Behavior[C, R] {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Behavior[C, R]{
		store:   store,
		logger:  logger.WithComponent("idempotency"),
		metrics: metrics,
		service: "stock-engine",
	}
}

// Wrap returns next guarded by the claim store
func (b *Behavior[C, R]) Wrap(next HandlerFunc[C, R]) HandlerFunc[C, R] {
	return func(ctx context.Context, cmd C) (R, error) {
		return b.Handle(ctx, cmd, next)
	}
}

// Handle claims cmd and runs next if the claim was started
func (b *Behavior[C, R]) Handle(ctx context.Context, cmd C, next HandlerFunc[C, R]) (result R, err error) {
	commandID := cmd.GetCommandID()
	commandType := cmd.GetCommandType()
	log := b.logger.WithContext(ctx).WithCommand(commandID, commandType)

	start := time.Now()
	claim, err := b.store.TryStart(ctx, commandID, commandType)
	if err != nil {
		b.metrics.RecordStorageError(b.service, "try_start")
		return result, fmt.Errorf("claim command %s: %w", commandID, err)
	}
	b.metrics.RecordClaim(b.service, commandType, claim.Outcome, time.Since(start).Seconds())

	switch claim.Outcome {
	case ClaimInProgress:
		log.Info("Duplicate command rejected while in progress")
		return result, &InProgressError{CommandID: commandID}
	case ClaimAlreadyCompleted:
		log.Info("Duplicate command answered from stored result")
		if len(claim.Result) > 0 {
			if err := json.Unmarshal(claim.Result, &result); err != nil {
				return result, fmt.Errorf("decode stored result for %s: %w", commandID, err)
			}
		}
		return result, nil
	case ClaimAlreadyFailed:
		log.Info("Duplicate command answered from stored failure", "reason", claim.FailureReason)
		return result, &FailedError{CommandID: commandID, Reason: claim.FailureReason}
	}

	// the claim must be settled even when the caller gives up
	settleCtx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			b.metrics.RecordHandlerFailure(b.service, commandType, "panic")
			b.fail(settleCtx, log, commandID, claim.Token, fmt.Sprintf("panic: %v", r))
			panic(r)
		}
	}()

	result, err = next(ctx, cmd)
	if err != nil {
		b.metrics.RecordHandlerFailure(b.service, commandType, "error")
		b.fail(settleCtx, log, commandID, claim.Token, err.Error())
		return result, err
	}

	payload, mErr := json.Marshal(result)
	if mErr != nil {
		// the side effects already happened, so the claim is still completed
		log.WithError(mErr).Warn("Command result is not serializable; storing empty result")
		payload = nil
	}
	if cErr := b.store.Complete(settleCtx, commandID, claim.Token, payload); cErr != nil {
		b.metrics.RecordStorageError(b.service, "complete")
		log.WithError(cErr).Error("Failed to complete command claim")
	}
	return result, nil
}

func (b *Behavior[C, R]) fail(ctx context.Context, log *logging.Logger, commandID, token, reason string) {
	if err := b.store.Fail(ctx, commandID, token, reason); err != nil {
		b.metrics.RecordStorageError(b.service, "fail")
		log.WithError(err).Error("Failed to mark command claim as failed")
	}
}

// Execute is a one-shot form of Behavior.Handle without logging or metrics
func Execute[C Command, R any](ctx context.Context, store ClaimStore, cmd C, next HandlerFunc[C, R]) (R, error) {
	return NewBehavior[C, R](store, nil, nil).Handle(ctx, cmd, next)
}
