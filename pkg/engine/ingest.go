package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/voicegate/internal/logger"
	"github.com/marmos91/voicegate/pkg/call"
	"github.com/marmos91/voicegate/pkg/call/store"
)

// IngestRequest is one audio metadata packet from the PBX.
type IngestRequest struct {
	CallID    string
	Sequence  int64
	Data      string
	Timestamp float64
}

// IngestOutcome reports one committed packet mutation. The fields mirror
// the rich acknowledgment body.
type IngestOutcome struct {
	CallID        string
	Sequence      int64
	TotalReceived int64
	Missing       []int64
	Duplicate     bool

	// Err is set when the mutation failed to commit. The packet is lost and
	// the failure is already logged with its call_id.
	Err error
}

// Ingest validates req and applies it asynchronously. The returned channel
// receives exactly one outcome once the mutation commits or fails; callers
// may stop waiting at any time without aborting the write.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (<-chan IngestOutcome, error) {
	if err := validateIngest(req); err != nil {
		if e.metrics != nil {
			e.metrics.RecordPacketPolicy("rejected")
		}
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrShutdown
	}
	e.tasks.Add(1)
	e.mu.Unlock()

	out := make(chan IngestOutcome, 1)

	// The mutation runs on a background context so a PBX disconnect after
	// the acknowledgment cannot abort a half-applied write.
	go func() {
		defer e.tasks.Done()
		out <- e.applyIngest(context.WithoutCancel(ctx), req)
	}()

	return out, nil
}

func validateIngest(req IngestRequest) error {
	switch {
	case req.CallID == "":
		return fmt.Errorf("%w: call_id is required", ErrInvalidInput)
	case req.Sequence < 0:
		return fmt.Errorf("%w: sequence must be non-negative", ErrInvalidInput)
	case req.Data == "":
		return fmt.Errorf("%w: data is required", ErrInvalidInput)
	case req.Timestamp <= 0:
		return fmt.Errorf("%w: timestamp must be positive", ErrInvalidInput)
	}
	return nil
}

// applyIngest stores the packet and updates sequence tracking inside one
// store transaction. Events queue on the same transaction, so subscribers
// only ever observe committed tracking state.
func (e *Engine) applyIngest(ctx context.Context, req IngestRequest) IngestOutcome {
	outcome := IngestOutcome{CallID: req.CallID, Sequence: req.Sequence}

	var (
		class  call.Classification
		policy string
	)

	err := e.store.Update(ctx, req.CallID, func(tx store.Tx) error {
		class, policy = "", "tracked"

		c, err := tx.CreateIfAbsent()
		if err != nil {
			return err
		}

		p := &call.Packet{
			CallID:    req.CallID,
			Sequence:  req.Sequence,
			Data:      req.Data,
			Timestamp: req.Timestamp,
		}

		// Tracking freezes once AI processing starts: keep the row for the
		// audit trail, but leave counters, gaps, and subscribers alone.
		if c.State == call.StateProcessingAI || c.State.IsTerminal() {
			policy = "best_effort"
			return e.applyBestEffort(ctx, tx, c, p, &outcome)
		}

		if err := tx.InsertPacket(p); err != nil {
			if errors.Is(err, call.ErrDuplicatePacket) {
				class = call.ClassDuplicate
				outcome.Duplicate = true
				outcome.TotalReceived = c.ReceivedCount
				outcome.Missing = append([]int64{}, c.MissingSequences()...)
				logger.WarnCtx(ctx, "duplicate packet",
					"call_id", req.CallID,
					"sequence", req.Sequence)
				return nil
			}
			return err
		}

		prevExpected := c.ExpectedNext
		res := call.ClassifySequence(c.ExpectedNext, c.Missing, req.Sequence)
		class = res.Class
		c.ReceivedCount++
		c.ExpectedNext = res.ExpectedNext
		c.Missing = res.Missing

		if res.Overflow > 0 {
			logger.WarnCtx(ctx, "missing set at capacity, gap partially untracked",
				"call_id", req.CallID,
				"sequence", req.Sequence,
				"untracked", res.Overflow,
				"cap", call.MaxMissingTracked)
		}

		switch res.Class {
		case call.ClassInOrder:
			logger.DebugCtx(ctx, "in-order packet",
				"call_id", req.CallID,
				"sequence", req.Sequence)
		case call.ClassGap:
			logger.WarnCtx(ctx, "sequence gap detected",
				"call_id", req.CallID,
				"sequence", req.Sequence,
				"expected", prevExpected,
				"missing_count", len(res.Missing))
		case call.ClassLateFill:
			logger.InfoCtx(ctx, "late packet filled gap",
				"call_id", req.CallID,
				"sequence", req.Sequence,
				"missing_count", len(res.Missing))
		case call.ClassDuplicate:
			// The row inserted fine but the sequence falls inside an
			// untracked gap; the data is kept, tracking stays put.
			logger.InfoCtx(ctx, "packet in untracked gap stored",
				"call_id", req.CallID,
				"sequence", req.Sequence)
		}

		if err := tx.Save(c); err != nil {
			return err
		}

		tx.Queue(call.PacketReceivedEvent{
			CallID:        req.CallID,
			Sequence:      req.Sequence,
			TotalReceived: c.ReceivedCount,
			Missing:       c.MissingSequences(),
		})

		outcome.TotalReceived = c.ReceivedCount
		outcome.Missing = append([]int64{}, c.MissingSequences()...)
		return nil
	})
	if err != nil {
		logger.ErrorCtx(ctx, "packet mutation failed",
			"call_id", req.CallID,
			"sequence", req.Sequence,
			"error", err)
		outcome.Err = err
		return outcome
	}

	if e.metrics != nil {
		if class != "" {
			e.metrics.RecordPacket(string(class))
		}
		e.metrics.RecordPacketPolicy(policy)
	}
	return outcome
}

// applyBestEffort keeps packet rows flowing for calls past PROCESSING_AI
// without touching sequence tracking or publishing events.
func (e *Engine) applyBestEffort(ctx context.Context, tx store.Tx, c *call.Call, p *call.Packet, outcome *IngestOutcome) error {
	if err := tx.InsertPacket(p); err != nil {
		if errors.Is(err, call.ErrDuplicatePacket) {
			outcome.Duplicate = true
			outcome.TotalReceived = c.ReceivedCount
			outcome.Missing = append([]int64{}, c.MissingSequences()...)
			return nil
		}
		return err
	}

	c.ReceivedCount++
	if err := tx.Save(c); err != nil {
		return err
	}

	outcome.TotalReceived = c.ReceivedCount
	outcome.Missing = append([]int64{}, c.MissingSequences()...)

	logger.InfoCtx(ctx, "packet stored after processing started",
		"call_id", p.CallID,
		"sequence", p.Sequence,
		"state", string(c.State))
	return nil
}
