package engine

import (
	"context"
	"fmt"

	"github.com/marmos91/voicegate/internal/logger"
	"github.com/marmos91/voicegate/pkg/call"
	"github.com/marmos91/voicegate/pkg/call/store"
)

// CompleteResult is the idempotent verdict of a completion signal.
type CompleteResult string

const (
	// CompleteAccepted means the call moved IN_PROGRESS -> COMPLETED and a
	// processing pipeline started.
	CompleteAccepted CompleteResult = "accepted"

	// CompleteAlreadyCompleted means a completion signal was accepted
	// earlier; the duplicate is acknowledged without side effects.
	CompleteAlreadyCompleted CompleteResult = "already_completed"

	// CompleteAlreadyTerminal means the call already reached ARCHIVED or
	// FAILED.
	CompleteAlreadyTerminal CompleteResult = "already_terminal"
)

// Complete handles the PBX completion signal for callID. The state gate
// commits synchronously; the grace period and AI analysis run on a
// background pipeline. Unknown call IDs return call.ErrCallNotFound.
func (e *Engine) Complete(ctx context.Context, callID string, expectedTotal int64) (CompleteResult, error) {
	if callID == "" {
		return "", fmt.Errorf("%w: call_id is required", ErrInvalidInput)
	}
	if expectedTotal <= 0 {
		return "", fmt.Errorf("%w: total_packets must be positive", ErrInvalidInput)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrShutdown
	}
	e.mu.Unlock()

	var result CompleteResult

	err := e.store.Update(ctx, callID, func(tx store.Tx) error {
		c, err := tx.LoadForUpdate()
		if err != nil {
			return err
		}

		switch {
		case c.State == call.StateCompleted || c.State == call.StateProcessingAI:
			result = CompleteAlreadyCompleted
			return nil
		case c.State.IsTerminal():
			result = CompleteAlreadyTerminal
			return nil
		}

		if err := c.Transition(call.StateCompleted); err != nil {
			return err
		}
		c.ExpectedTotal = &expectedTotal
		if err := tx.Save(c); err != nil {
			return err
		}

		tx.Queue(call.StateChangedEvent{
			CallID: callID,
			From:   call.StateInProgress,
			To:     call.StateCompleted,
		})
		result = CompleteAccepted
		return nil
	})
	if err != nil {
		return "", err
	}

	switch result {
	case CompleteAccepted:
		if e.metrics != nil {
			e.metrics.RecordStateTransition(string(call.StateInProgress), string(call.StateCompleted))
		}
		logger.InfoCtx(ctx, "call completed, grace period started",
			"call_id", callID,
			"expected_total", expectedTotal,
			"grace_period", e.cfg.GracePeriod)
		e.startPipeline(callID)
	case CompleteAlreadyCompleted:
		logger.InfoCtx(ctx, "duplicate completion signal ignored", "call_id", callID)
	case CompleteAlreadyTerminal:
		logger.InfoCtx(ctx, "completion signal for terminal call ignored",
			"call_id", callID)
	}

	return result, nil
}
