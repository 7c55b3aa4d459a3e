package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/clinicore/go-clinic-core/internal/audit"
)

// topicFor maps event kinds onto stream topics.
func topicFor(kind audit.Kind) string {
	switch kind {
	case audit.KindClaimWon, audit.KindClaimConflict, audit.KindClaimFailed:
		return "audit.billing"
	default:
		return "audit.safety"
	}
}

// AuditWriter persists audit events into the outbox table. It implements
// audit.Writer.
type AuditWriter struct {
	pool *pgxpool.Pool
}

// NewAuditWriter creates a writer over a connection pool.
func NewAuditWriter(pool *pgxpool.Pool) *AuditWriter {
	return &AuditWriter{pool: pool}
}

// WriteEvent appends one event to the audit outbox. The relay drains it to
// the stream later; the write itself is the durability point.
func (w *AuditWriter) WriteEvent(ctx context.Context, e audit.Event) error {
	_, err := w.pool.Exec(ctx, `
		INSERT INTO audit_outbox (event_id, kind, subject, payload, topic, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`, e.ID, string(e.Kind), e.Subject, e.Payload, topicFor(e.Kind), e.At)
	if err != nil {
		return fmt.Errorf("write audit outbox: %w", err)
	}
	return nil
}

// RelayPublisher publishes a drained outbox row to the audit stream.
type RelayPublisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// RelayConfig holds configuration for the audit relay.
type RelayConfig struct {
	// BatchSize is the number of rows drained per poll.
	BatchSize int
	// PollInterval is how often to poll for new rows.
	PollInterval time.Duration
	// MaxRetries before a row moves to the dead-letter topic.
	MaxRetries int
}

// DefaultRelayConfig returns sensible defaults.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		BatchSize:    200,
		PollInterval: 250 * time.Millisecond,
		MaxRetries:   5,
	}
}

// relayLockID is the advisory lock keeping concurrent relay replicas from
// draining the same rows.
const relayLockID = int64(774422)

// AuditRelay drains the audit outbox to the stream publisher.
type AuditRelay struct {
	pool      *pgxpool.Pool
	config    RelayConfig
	publisher RelayPublisher
	logger    *zap.Logger
	tracer    trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAuditRelay creates a relay.
func NewAuditRelay(pool *pgxpool.Pool, publisher RelayPublisher, cfg RelayConfig, logger *zap.Logger) *AuditRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AuditRelay{
		pool:      pool,
		config:    cfg,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("audit-relay"),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Start begins the drain loop.
func (r *AuditRelay) Start() {
	go r.loop()
	r.logger.Info("audit relay started",
		zap.Int("batch_size", r.config.BatchSize),
		zap.Duration("poll_interval", r.config.PollInterval))
}

// Stop stops the drain loop.
func (r *AuditRelay) Stop() {
	r.cancel()
	<-r.done
	r.logger.Info("audit relay stopped")
}

func (r *AuditRelay) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.drainBatch()
		}
	}
}

type outboxRow struct {
	id         int64
	eventID    string
	kind       string
	subject    string
	payload    json.RawMessage
	topic      string
	retryCount int
}

func (r *AuditRelay) drainBatch() {
	ctx, span := r.tracer.Start(r.ctx, "audit_relay_drain")
	defer span.End()

	var acquired bool
	if err := r.pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", relayLockID).Scan(&acquired); err != nil || !acquired {
		return // another replica holds the lock
	}
	defer r.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", relayLockID)

	rows, err := r.fetch(ctx)
	if err != nil {
		r.logger.Error("audit outbox fetch failed", zap.Error(err))
		span.RecordError(err)
		return
	}
	if len(rows) == 0 {
		return
	}
	span.SetAttributes(attribute.Int("batch_size", len(rows)))

	for _, row := range rows {
		if err := r.publishRow(ctx, row); err != nil {
			r.logger.Error("audit publish failed",
				zap.String("event_id", row.eventID),
				zap.String("kind", row.kind),
				zap.Error(err))
		}
	}
}

func (r *AuditRelay) fetch(ctx context.Context) ([]outboxRow, error) {
	result, err := r.pool.Query(ctx, `
		SELECT id, event_id, kind, subject, payload, topic, retry_count
		FROM audit_outbox
		WHERE published_at IS NULL
		  AND retry_count < $1
		ORDER BY occurred_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, r.config.MaxRetries, r.config.BatchSize)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	var rows []outboxRow
	for result.Next() {
		var row outboxRow
		if err := result.Scan(&row.id, &row.eventID, &row.kind, &row.subject, &row.payload, &row.topic, &row.retryCount); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, result.Err()
}

func (r *AuditRelay) publishRow(ctx context.Context, row outboxRow) error {
	value, err := json.Marshal(map[string]interface{}{
		"id":      row.eventID,
		"kind":    row.kind,
		"subject": row.subject,
		"payload": row.payload,
	})
	if err != nil {
		return err
	}

	if err := r.publisher.Publish(ctx, row.topic, row.eventID, value); err != nil {
		if _, updateErr := r.pool.Exec(ctx, `
			UPDATE audit_outbox
			SET retry_count = retry_count + 1, last_error = $1
			WHERE id = $2
		`, err.Error(), row.id); updateErr != nil {
			r.logger.Error("retry bookkeeping failed", zap.Error(updateErr))
		}
		return err
	}

	_, err = r.pool.Exec(ctx, `
		UPDATE audit_outbox SET published_at = NOW() WHERE id = $1
	`, row.id)
	return err
}

// MoveToDeadLetter republishes rows past the retry budget onto the
// dead-letter topic and marks them published.
func (r *AuditRelay) MoveToDeadLetter(ctx context.Context) (int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, kind, subject, payload, topic, retry_count
		FROM audit_outbox
		WHERE published_at IS NULL
		  AND retry_count >= $1
		FOR UPDATE SKIP LOCKED
	`, r.config.MaxRetries)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var moved int64
	for rows.Next() {
		var row outboxRow
		var lastTopic string
		if err := rows.Scan(&row.id, &row.eventID, &row.kind, &row.subject, &row.payload, &lastTopic, &row.retryCount); err != nil {
			continue
		}

		value, _ := json.Marshal(map[string]interface{}{
			"id":             row.eventID,
			"kind":           row.kind,
			"subject":        row.subject,
			"payload":        row.payload,
			"original_topic": lastTopic,
			"retry_count":    row.retryCount,
		})
		if err := r.publisher.Publish(ctx, "audit.deadletter", row.eventID, value); err != nil {
			r.logger.Error("dead-letter publish failed", zap.Error(err))
			continue
		}
		if _, err := r.pool.Exec(ctx, "UPDATE audit_outbox SET published_at = NOW() WHERE id = $1", row.id); err != nil {
			continue
		}
		moved++
	}
	return moved, rows.Err()
}

// Pending returns the number of unpublished rows, for the relay readiness
// probe and the outbox gauge.
func (r *AuditRelay) Pending(ctx context.Context) (int64, error) {
	var pending int64
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM audit_outbox WHERE published_at IS NULL").Scan(&pending)
	return pending, err
}
