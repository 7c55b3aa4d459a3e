// Package billing implements the queue-to-billing claim arbitration
// protocol: exactly one staff member wins the right to convert a completed
// visit into a bill, for any number of concurrent attempts.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LineItem is one billable line on a new bill.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// QueueClaim records the exclusive conversion of a completed queue entry
// into a bill. At most one claim ever exists per entry; it is immutable
// once created.
type QueueClaim struct {
	QueueEntryID int64     `json:"queue_entry_id"`
	BillID       string    `json:"bill_id"`
	StaffID      string    `json:"staff_id"`
	ClaimedAt    time.Time `json:"claimed_at"`
}

// ErrNoClaim is returned by stores when no claim exists for an entry.
var ErrNoClaim = errors.New("no claim for queue entry")

// ConflictError reports that the entry was already claimed. It carries the
// winner's bill ID so callers can redirect instead of failing opaquely.
type ConflictError struct {
	QueueEntryID   int64
	ExistingBillID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("queue entry %d already billed (bill %s)", e.QueueEntryID, e.ExistingBillID)
}

// TransientError reports a retryable failure: serialization conflict,
// deadlock, or timeout. The entry remains unbilled; the caller may retry
// the whole arbitration.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient claim failure: %v", e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// IsConflict reports whether err is a claim conflict and returns it.
func IsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsTransient reports whether err is safe to retry.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ClaimStore is the persistence contract for claim arbitration. The store
// owns the race-safety guarantee: CreateClaim must be atomic, re-checking
// existence inside its transaction and relying on a uniqueness constraint
// on the queue-entry key as the authoritative guard.
type ClaimStore interface {
	// FindClaim returns the existing claim for an entry, or ErrNoClaim.
	FindClaim(ctx context.Context, queueEntryID int64) (*QueueClaim, error)

	// CreateClaim inserts the bill and its line items for an unclaimed
	// entry. Returns *ConflictError when another caller already won, and
	// *TransientError for retryable failures.
	CreateClaim(ctx context.Context, queueEntryID int64, staffID string, items []LineItem) (*QueueClaim, error)
}
