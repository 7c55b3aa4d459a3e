// Package memory provides in-memory adapters used by tests and local
// development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/go-clinic-core/internal/billing"
)

// ClaimStore is a mutex-guarded map implementation of billing.ClaimStore.
// The single lock gives the same at-most-one-claim guarantee the Postgres
// adapter gets from its unique constraint.
type ClaimStore struct {
	mu     sync.Mutex
	claims map[int64]*billing.QueueClaim
	items  map[string][]billing.LineItem
}

// NewClaimStore creates an empty store.
func NewClaimStore() *ClaimStore {
	return &ClaimStore{
		claims: make(map[int64]*billing.QueueClaim),
		items:  make(map[string][]billing.LineItem),
	}
}

// FindClaim returns the claim for an entry, or billing.ErrNoClaim.
func (s *ClaimStore) FindClaim(ctx context.Context, queueEntryID int64) (*billing.QueueClaim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	claim, ok := s.claims[queueEntryID]
	if !ok {
		return nil, billing.ErrNoClaim
	}
	copied := *claim
	return &copied, nil
}

// CreateClaim inserts a claim unless one already exists. The existence
// re-check and the insert happen under one lock, mirroring the
// transactional double-check of the Postgres adapter.
func (s *ClaimStore) CreateClaim(ctx context.Context, queueEntryID int64, staffID string, lineItems []billing.LineItem) (*billing.QueueClaim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.claims[queueEntryID]; ok {
		return nil, &billing.ConflictError{
			QueueEntryID:   queueEntryID,
			ExistingBillID: existing.BillID,
		}
	}

	claim := &billing.QueueClaim{
		QueueEntryID: queueEntryID,
		BillID:       uuid.New().String(),
		StaffID:      staffID,
		ClaimedAt:    time.Now().UTC(),
	}
	s.claims[queueEntryID] = claim
	s.items[claim.BillID] = append([]billing.LineItem(nil), lineItems...)

	copied := *claim
	return &copied, nil
}

// LineItems returns the items recorded for a bill. Test helper.
func (s *ClaimStore) LineItems(billID string) []billing.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]billing.LineItem(nil), s.items[billID]...)
}
