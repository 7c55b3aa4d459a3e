package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/clinicore/go-clinic-core/internal/audit"
)

// Arbitrator coordinates claim attempts on completed queue entries.
// "First commit wins": for any interleaving of concurrent attempts on one
// entry, exactly one caller observes success and every other observes a
// ConflictError carrying the winner's bill ID.
type Arbitrator struct {
	store   ClaimStore
	sink    audit.Sink
	logger  *zap.Logger
	tracer  trace.Tracer
	timeout time.Duration
}

// Config holds arbitrator configuration.
type Config struct {
	// AttemptTimeout bounds one full claim attempt including the store
	// transaction. Expiry surfaces as a TransientError.
	AttemptTimeout time.Duration
}

// DefaultConfig returns defaults suitable for interactive billing.
func DefaultConfig() Config {
	return Config{AttemptTimeout: 5 * time.Second}
}

// NewArbitrator creates an arbitrator. A nil sink disables audit emission.
func NewArbitrator(store ClaimStore, cfg Config, sink audit.Sink, logger *zap.Logger) *Arbitrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultConfig().AttemptTimeout
	}
	return &Arbitrator{
		store:   store,
		sink:    sink,
		logger:  logger,
		tracer:  otel.Tracer("claim-arbitrator"),
		timeout: cfg.AttemptTimeout,
	}
}

// Claim attempts to convert a completed queue entry into a bill.
//
// Protocol: a fast existence pre-check short-circuits the common "already
// billed" case without opening a transaction; the store then re-checks
// inside its transaction before inserting, with the unique constraint on
// the queue-entry key as the authoritative guarantee. Any insert failure
// rolls the whole transaction back and leaves the entry unbilled.
func (a *Arbitrator) Claim(ctx context.Context, queueEntryID int64, staffID string, items []LineItem) (*QueueClaim, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ctx, span := a.tracer.Start(ctx, "claim_attempt",
		trace.WithAttributes(
			attribute.Int64("queue_entry_id", queueEntryID),
			attribute.String("staff_id", staffID),
		))
	defer span.End()

	if len(items) == 0 {
		return nil, fmt.Errorf("at least one line item is required")
	}

	// Fast pre-check. An optimization only: the race window it leaves is
	// closed by the store's transactional re-check and unique constraint.
	existing, err := a.store.FindClaim(ctx, queueEntryID)
	switch {
	case err == nil:
		conflict := &ConflictError{QueueEntryID: queueEntryID, ExistingBillID: existing.BillID}
		a.auditConflict(queueEntryID, staffID, conflict)
		return nil, conflict
	case errors.Is(err, ErrNoClaim):
		// Proceed to the authoritative attempt.
	default:
		return nil, a.classify(ctx, queueEntryID, staffID, err)
	}

	claim, err := a.store.CreateClaim(ctx, queueEntryID, staffID, items)
	if err != nil {
		if conflict, ok := IsConflict(err); ok {
			a.auditConflict(queueEntryID, staffID, conflict)
			return nil, conflict
		}
		return nil, a.classify(ctx, queueEntryID, staffID, err)
	}

	span.SetAttributes(attribute.String("bill_id", claim.BillID))
	a.logger.Info("queue entry claimed",
		zap.Int64("queue_entry_id", queueEntryID),
		zap.String("bill_id", claim.BillID),
		zap.String("staff_id", staffID))
	a.sink.Emit(audit.NewEvent(audit.KindClaimWon, fmt.Sprintf("queue-entry-%d", queueEntryID), claim))

	return claim, nil
}

// classify maps store and context failures onto the claim error taxonomy.
// Deadline expiry and store-flagged retryable failures become Transient;
// everything else is fatal and propagates wrapped.
func (a *Arbitrator) classify(ctx context.Context, queueEntryID int64, staffID string, err error) error {
	if IsTransient(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		a.logger.Warn("claim attempt retryable",
			zap.Int64("queue_entry_id", queueEntryID),
			zap.Error(err))
		if IsTransient(err) {
			return err
		}
		return &TransientError{Cause: err}
	}

	a.logger.Error("claim attempt failed",
		zap.Int64("queue_entry_id", queueEntryID),
		zap.String("staff_id", staffID),
		zap.Error(err))
	a.sink.Emit(audit.NewEvent(audit.KindClaimFailed, fmt.Sprintf("queue-entry-%d", queueEntryID), map[string]string{
		"staff_id": staffID,
		"error":    err.Error(),
	}))
	return fmt.Errorf("claim queue entry %d: %w", queueEntryID, err)
}

func (a *Arbitrator) auditConflict(queueEntryID int64, staffID string, conflict *ConflictError) {
	a.logger.Info("claim conflict",
		zap.Int64("queue_entry_id", queueEntryID),
		zap.String("existing_bill_id", conflict.ExistingBillID),
		zap.String("staff_id", staffID))
	a.sink.Emit(audit.NewEvent(audit.KindClaimConflict, fmt.Sprintf("queue-entry-%d", queueEntryID), map[string]string{
		"staff_id":         staffID,
		"existing_bill_id": conflict.ExistingBillID,
	}))
}
