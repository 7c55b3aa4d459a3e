// Package idempotency provides the Inbox pattern for exactly-once message
// processing. The audit archiver runs every consumed record through it so
// broker redeliveries never duplicate archive rows.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Status is the processing state of an inbox entry.
type Status string

const (
	StatusStarted     Status = "STARTED"
	StatusFinished    Status = "FINISHED"
	StatusRecoverable Status = "RECOVERABLE"
)

// ErrInProgress indicates another worker currently holds the key.
var ErrInProgress = errors.New("message in progress by another handler")

// errFinishedMeanwhile signals a key that finished between the pre-check
// and the claim insert.
var errFinishedMeanwhile = errors.New("key finished concurrently")

// Config holds inbox configuration.
type Config struct {
	// TTL after which finished entries may be cleaned up.
	TTL time.Duration
	// RecoveryTimeout after which a STARTED entry is treated as a crashed
	// worker and becomes reprocessable.
	RecoveryTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TTL:             7 * 24 * time.Hour,
		RecoveryTimeout: 5 * time.Minute,
	}
}

// Inbox tracks processed message keys in Postgres.
type Inbox struct {
	pool   *pgxpool.Pool
	config Config
	logger *zap.Logger
	tracer trace.Tracer
}

// NewInbox creates an inbox.
func NewInbox(pool *pgxpool.Pool, cfg Config, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbox{
		pool:   pool,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("inbox"),
	}
}

// HandlerFunc performs the actual processing for a new key.
type HandlerFunc func(ctx context.Context) error

// Process runs fn at most once per key. Duplicate keys return (false, nil)
// without invoking fn; a key currently held by another worker returns
// ErrInProgress so the caller can retry or requeue.
func (i *Inbox) Process(ctx context.Context, key, handlerName string, fn HandlerFunc) (bool, error) {
	ctx, span := i.tracer.Start(ctx, "inbox_process",
		trace.WithAttributes(
			attribute.String("idempotency_key", key),
			attribute.String("handler", handlerName),
		))
	defer span.End()

	var (
		status    Status
		updatedAt time.Time
	)
	err := i.pool.QueryRow(ctx,
		`SELECT status, updated_at FROM inbox WHERE idempotency_key = $1`, key,
	).Scan(&status, &updatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// New key.
	case err != nil:
		return false, fmt.Errorf("check inbox: %w", err)
	default:
		switch status {
		case StatusFinished:
			span.SetAttributes(attribute.Bool("duplicate", true))
			return false, nil
		case StatusStarted:
			if time.Since(updatedAt) <= i.config.RecoveryTimeout {
				return false, ErrInProgress
			}
			// Stale holder, fall through and reclaim.
		case StatusRecoverable:
			span.SetAttributes(attribute.Bool("recovered", true))
		}
	}

	if err := i.start(ctx, key, handlerName); err != nil {
		if errors.Is(err, errFinishedMeanwhile) {
			span.SetAttributes(attribute.Bool("duplicate", true))
			return false, nil
		}
		return false, err
	}

	if handlerErr := fn(ctx); handlerErr != nil {
		if err := i.setStatus(ctx, key, StatusRecoverable, handlerErr.Error()); err != nil {
			i.logger.Error("inbox status update failed", zap.Error(err))
		}
		span.RecordError(handlerErr)
		return false, handlerErr
	}

	if err := i.setStatus(ctx, key, StatusFinished, ""); err != nil {
		// The handler succeeded; log and accept a possible redo.
		i.logger.Error("inbox finish mark failed", zap.Error(err))
	}
	return true, nil
}

// GenerateKey derives a deterministic key for records without a natural
// unique ID, from their stream coordinates.
func GenerateKey(topic string, partition int32, offset int64) string {
	data := fmt.Sprintf("%s|%d|%d", topic, partition, offset)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

func (i *Inbox) start(ctx context.Context, key, handlerName string) error {
	expiresAt := time.Now().Add(i.config.TTL)

	var returned string
	err := i.pool.QueryRow(ctx, `
		INSERT INTO inbox (idempotency_key, handler_name, status, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status = $3, updated_at = NOW()
		WHERE inbox.status IN ('RECOVERABLE', 'STARTED')
		RETURNING idempotency_key
	`, key, handlerName, StatusStarted, expiresAt).Scan(&returned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Conflict against a FINISHED row that appeared since our check.
			return errFinishedMeanwhile
		}
		return fmt.Errorf("start processing: %w", err)
	}
	return nil
}

func (i *Inbox) setStatus(ctx context.Context, key string, status Status, lastError string) error {
	_, err := i.pool.Exec(ctx, `
		UPDATE inbox
		SET status = $1, last_error = NULLIF($2, ''), updated_at = NOW()
		WHERE idempotency_key = $3
	`, status, lastError, key)
	return err
}

// Cleanup removes expired entries. Run periodically by the archiver.
func (i *Inbox) Cleanup(ctx context.Context) (int64, error) {
	result, err := i.pool.Exec(ctx, `DELETE FROM inbox WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
