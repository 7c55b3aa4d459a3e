package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ArchiveRecord is one consumed audit event bound for long-term storage.
type ArchiveRecord struct {
	EventID    string          `json:"id"`
	Kind       string          `json:"kind"`
	Subject    string          `json:"subject"`
	Payload    json.RawMessage `json:"payload"`
	Topic      string          `json:"-"`
	ReceivedAt time.Time       `json:"-"`
}

// ArchiveStore writes consumed audit events into the audit_log table.
type ArchiveStore struct {
	pool *pgxpool.Pool
}

// NewArchiveStore creates a store.
func NewArchiveStore(pool *pgxpool.Pool) *ArchiveStore {
	return &ArchiveStore{pool: pool}
}

// Insert persists one record. The unique index on event_id makes the
// write idempotent alongside the inbox.
func (s *ArchiveStore) Insert(ctx context.Context, rec ArchiveRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (event_id, kind, subject, payload, topic, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`, rec.EventID, rec.Kind, rec.Subject, rec.Payload, rec.Topic, rec.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert audit_log: %w", err)
	}
	return nil
}
