package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/voicegate/internal/logger"
	"github.com/marmos91/voicegate/pkg/ai"
	"github.com/marmos91/voicegate/pkg/archive"
	"github.com/marmos91/voicegate/pkg/call"
	"github.com/marmos91/voicegate/pkg/call/store"
)

// Operator-facing failure reasons. Raw error text stays in the logs and
// never reaches subscribers.
const (
	reasonAIFailed = "AI service failed after maximum retries"
	reasonInternal = "internal processing error"
)

// exportTimeout bounds the post-archive upload so a slow archive endpoint
// cannot stall engine shutdown.
const exportTimeout = 10 * time.Second

// startPipeline launches the completion pipeline for callID. If shutdown
// already started the call stays COMPLETED and is re-driven after restart.
func (e *Engine) startPipeline(callID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		logger.Warn("pipeline not started, engine shutting down", "call_id", callID)
		return
	}

	e.pipelines.Add(1)
	go func() {
		defer e.pipelines.Done()
		e.runPipeline(e.pipeCtx, callID)
	}()
}

// runPipeline drives one completed call through the grace period, AI
// analysis, and the terminal transition. Cancellation of ctx abandons the
// call wherever it stands; no terminal state is ever written on shutdown.
func (e *Engine) runPipeline(ctx context.Context, callID string) {
	start := time.Now()

	logger.Info("grace period for late packets",
		"call_id", callID,
		"grace_period", e.cfg.GracePeriod)

	select {
	case <-time.After(e.cfg.GracePeriod):
	case <-ctx.Done():
		logger.Warn("pipeline abandoned during grace period", "call_id", callID)
		return
	}

	payload, ok := e.beginProcessing(ctx, callID)
	if !ok {
		return
	}

	res, err := e.retrier.Analyze(ctx, payload)
	switch {
	case err == nil:
		e.finishArchived(ctx, callID, res, start)
	case ctx.Err() != nil:
		// Shutdown mid-analysis. The call stays in PROCESSING_AI and can be
		// re-driven after restart.
		logger.Warn("pipeline abandoned during ai analysis", "call_id", callID)
	default:
		logger.Error("ai analysis gave up", "call_id", callID, "error", err)
		e.finishFailed(ctx, callID, reasonAIFailed, start)
	}
}

// beginProcessing transitions the call to PROCESSING_AI and assembles the
// analysis payload from the packets stored so far. Packets arriving after
// this commit are kept as rows but excluded from the transcript.
func (e *Engine) beginProcessing(ctx context.Context, callID string) (string, bool) {
	var payload string

	err := e.store.Update(ctx, callID, func(tx store.Tx) error {
		c, err := tx.LoadForUpdate()
		if err != nil {
			return err
		}

		if c.State != call.StateCompleted {
			return fmt.Errorf("%w: pipeline expects COMPLETED, call is %s",
				call.ErrInvalidTransition, c.State)
		}

		var expected int64
		if c.ExpectedTotal != nil {
			expected = *c.ExpectedTotal
		}
		if len(c.Missing) > 0 {
			logger.Warn("starting ai analysis with missing packets",
				"call_id", callID,
				"missing", c.Missing,
				"received", c.ReceivedCount,
				"expected_total", expected,
				"count_matches", c.ReceivedCount == expected)
		} else {
			logger.Info("all tracked packets received",
				"call_id", callID,
				"received", c.ReceivedCount,
				"expected_total", expected)
		}

		if err := c.Transition(call.StateProcessingAI); err != nil {
			return err
		}
		if err := tx.Save(c); err != nil {
			return err
		}

		packets, err := tx.ListPacketsOrdered()
		if err != nil {
			return err
		}
		parts := make([]string, len(packets))
		for i, p := range packets {
			parts[i] = p.Data
		}
		payload = strings.Join(parts, " ")

		tx.Queue(call.StateChangedEvent{
			CallID: callID,
			From:   call.StateCompleted,
			To:     call.StateProcessingAI,
		})
		return nil
	})
	if err != nil {
		// There is no edge from COMPLETED to FAILED, so the call is left
		// as is for re-driving.
		logger.Error("failed to start ai processing",
			"call_id", callID,
			"error", err)
		return "", false
	}

	if e.metrics != nil {
		e.metrics.RecordStateTransition(string(call.StateCompleted), string(call.StateProcessingAI))
	}
	return payload, true
}

// finishArchived commits the AI results with the ARCHIVED transition and
// hands the record to the exporter. Export failures are logged only; the
// primary store already holds the results.
func (e *Engine) finishArchived(ctx context.Context, callID string, res *ai.Result, start time.Time) {
	var rec archive.Record

	err := e.store.Update(ctx, callID, func(tx store.Tx) error {
		c, err := tx.LoadForUpdate()
		if err != nil {
			return err
		}

		c.Transcription = &res.Transcription
		c.Sentiment = &res.Sentiment
		if err := c.Transition(call.StateArchived); err != nil {
			return err
		}
		if err := tx.Save(c); err != nil {
			return err
		}

		tx.Queue(call.AICompletedEvent{
			CallID:        callID,
			Transcription: res.Transcription,
			Sentiment:     res.Sentiment,
		})
		tx.Queue(call.StateChangedEvent{
			CallID: callID,
			From:   call.StateProcessingAI,
			To:     call.StateArchived,
		})

		var expected int64
		if c.ExpectedTotal != nil {
			expected = *c.ExpectedTotal
		}
		rec = archive.Record{
			CallID:        callID,
			Transcription: res.Transcription,
			Sentiment:     res.Sentiment,
			ReceivedCount: c.ReceivedCount,
			ExpectedTotal: expected,
			ArchivedAt:    time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to archive ai results",
			"call_id", callID,
			"error", err)
		e.finishFailed(ctx, callID, reasonInternal, start)
		return
	}

	if e.metrics != nil {
		e.metrics.RecordStateTransition(string(call.StateProcessingAI), string(call.StateArchived))
		e.metrics.RecordPipeline("archived", time.Since(start))
	}
	logger.Info("ai processing completed",
		"call_id", callID,
		"sentiment", res.Sentiment,
		"elapsed", time.Since(start))

	if e.exporter != nil {
		exportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exportTimeout)
		defer cancel()
		if err := e.exporter.Export(exportCtx, rec); err != nil {
			logger.Error("archive export failed", "call_id", callID, "error", err)
		}
	}
}

// finishFailed commits the FAILED transition with a sanitized reason. A
// failed commit here is logged and abandoned; the call stays in
// PROCESSING_AI rather than reporting a terminal state that never held.
func (e *Engine) finishFailed(ctx context.Context, callID, reason string, start time.Time) {
	err := e.store.Update(ctx, callID, func(tx store.Tx) error {
		c, err := tx.LoadForUpdate()
		if err != nil {
			return err
		}

		if err := c.Transition(call.StateFailed); err != nil {
			return err
		}
		if err := tx.Save(c); err != nil {
			return err
		}

		tx.Queue(call.AIFailedEvent{CallID: callID, Reason: reason})
		tx.Queue(call.StateChangedEvent{
			CallID: callID,
			From:   call.StateProcessingAI,
			To:     call.StateFailed,
		})
		return nil
	})
	if err != nil {
		logger.Error("failed to mark call failed",
			"call_id", callID,
			"error", err)
		return
	}

	if e.metrics != nil {
		e.metrics.RecordStateTransition(string(call.StateProcessingAI), string(call.StateFailed))
		e.metrics.RecordPipeline("failed", time.Since(start))
	}
	logger.Error("call processing failed",
		"call_id", callID,
		"reason", reason,
		"elapsed", time.Since(start))
}
