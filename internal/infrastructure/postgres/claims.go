// Package postgres provides the PostgreSQL adapters: the claim store
// backing bill arbitration and the transactional audit outbox.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/clinicore/go-clinic-core/internal/billing"
)

// Postgres error codes relevant to claim arbitration.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// ClaimStore implements billing.ClaimStore over pgx. The bills table
// carries a unique index on queue_entry_id; that constraint, not the
// in-transaction re-check, is the authoritative at-most-once guarantee.
type ClaimStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewClaimStore creates a store over a connection pool.
func NewClaimStore(pool *pgxpool.Pool, logger *zap.Logger) *ClaimStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimStore{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("claim-store"),
	}
}

// FindClaim returns the bill already referencing a queue entry, if any.
func (s *ClaimStore) FindClaim(ctx context.Context, queueEntryID int64) (*billing.QueueClaim, error) {
	query := `
		SELECT queue_entry_id, bill_id, staff_id, claimed_at
		FROM bills
		WHERE queue_entry_id = $1
	`

	claim := &billing.QueueClaim{}
	err := s.pool.QueryRow(ctx, query, queueEntryID).Scan(
		&claim.QueueEntryID, &claim.BillID, &claim.StaffID, &claim.ClaimedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, billing.ErrNoClaim
		}
		return nil, s.mapError(fmt.Errorf("find claim: %w", err))
	}
	return claim, nil
}

// CreateClaim inserts the bill and its line items in one SERIALIZABLE
// transaction. The existence re-check inside the transaction closes the
// race window left by the caller's fast pre-check; a concurrent winner
// surfaces either through that re-check or as a unique violation on
// commit, both mapped to ConflictError with the winner's bill ID.
func (s *ClaimStore) CreateClaim(ctx context.Context, queueEntryID int64, staffID string, items []billing.LineItem) (*billing.QueueClaim, error) {
	ctx, span := s.tracer.Start(ctx, "create_claim",
		trace.WithAttributes(attribute.Int64("queue_entry_id", queueEntryID)))
	defer span.End()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, s.mapError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	// Double-check inside the transaction.
	var existingBillID string
	err = tx.QueryRow(ctx,
		`SELECT bill_id FROM bills WHERE queue_entry_id = $1`, queueEntryID,
	).Scan(&existingBillID)
	switch {
	case err == nil:
		return nil, &billing.ConflictError{QueueEntryID: queueEntryID, ExistingBillID: existingBillID}
	case errors.Is(err, pgx.ErrNoRows):
		// Entry is unclaimed as of this snapshot; proceed to insert.
	default:
		return nil, s.mapError(fmt.Errorf("re-check claim: %w", err))
	}

	claim := &billing.QueueClaim{
		QueueEntryID: queueEntryID,
		BillID:       uuid.New().String(),
		StaffID:      staffID,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO bills (bill_id, queue_entry_id, staff_id)
		VALUES ($1, $2, $3)
		RETURNING claimed_at
	`, claim.BillID, queueEntryID, staffID).Scan(&claim.ClaimedAt)
	if err != nil {
		return nil, s.insertError(ctx, queueEntryID, err)
	}

	for _, item := range items {
		_, err = tx.Exec(ctx, `
			INSERT INTO bill_line_items (bill_id, description, quantity, unit_price)
			VALUES ($1, $2, $3, $4)
		`, claim.BillID, item.Description, item.Quantity, item.UnitPrice)
		if err != nil {
			return nil, s.mapError(fmt.Errorf("insert line item: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, s.insertError(ctx, queueEntryID, err)
	}

	span.SetAttributes(attribute.String("bill_id", claim.BillID))
	return claim, nil
}

// insertError maps an insert/commit failure; a unique violation means a
// concurrent caller won between the re-check and our commit, so the
// winner's bill ID is re-read outside the failed transaction.
func (s *ClaimStore) insertError(ctx context.Context, queueEntryID int64, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		winner, findErr := s.findWinner(ctx, queueEntryID)
		if findErr != nil {
			s.logger.Warn("conflict winner lookup failed",
				zap.Int64("queue_entry_id", queueEntryID),
				zap.Error(findErr))
		}
		return &billing.ConflictError{QueueEntryID: queueEntryID, ExistingBillID: winner}
	}
	return s.mapError(fmt.Errorf("insert bill: %w", err))
}

// findWinner reads the winning bill ID with a short independent deadline,
// so a conflict can still be reported after the caller's budget expired.
func (s *ClaimStore) findWinner(ctx context.Context, queueEntryID int64) (string, error) {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var billID string
	err := s.pool.QueryRow(ctx,
		`SELECT bill_id FROM bills WHERE queue_entry_id = $1`, queueEntryID,
	).Scan(&billID)
	return billID, err
}

// mapError folds serialization failures, deadlocks and deadline expiry
// into the retryable taxonomy.
func (s *ClaimStore) mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return &billing.TransientError{Cause: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &billing.TransientError{Cause: err}
	}
	return err
}
