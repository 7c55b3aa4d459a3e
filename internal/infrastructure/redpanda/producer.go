// Package redpanda carries the clinic audit stream over Kafka-compatible
// brokers with franz-go.
package redpanda

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ProducerConfig holds producer configuration.
type ProducerConfig struct {
	Brokers []string
	// LingerMS is how long to wait before sending a batch.
	LingerMS int64
	// Compression codec: lz4, snappy, gzip, zstd, or empty for none.
	Compression string
	// MaxRetries for failed sends.
	MaxRetries int
}

// DefaultProducerConfig returns defaults tuned for the audit stream:
// modest batching, full-ISR acks for durability of the audit trail.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:     []string{"localhost:9092"},
		LingerMS:    25,
		Compression: "lz4",
		MaxRetries:  3,
	}
}

// Producer publishes audit records to the stream.
type Producer struct {
	client *kgo.Client
	logger *zap.Logger
	tracer trace.Tracer

	published int64
	failed    int64
}

// NewProducer creates a producer.
func NewProducer(cfg ProducerConfig, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerLinger(time.Duration(cfg.LingerMS) * time.Millisecond),
		kgo.RecordRetries(cfg.MaxRetries),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}

	switch cfg.Compression {
	case "lz4":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "snappy":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "gzip":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
	case "zstd":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Producer{
		client: client,
		logger: logger,
		tracer: otel.Tracer("audit-producer"),
	}, nil
}

// Publish sends one record and waits for the broker ack. Satisfies the
// relay's publisher contract.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	ctx, span := p.tracer.Start(ctx, "audit_publish",
		trace.WithAttributes(
			attribute.String("topic", topic),
			attribute.Int("value_size", len(value)),
		))
	defer span.End()

	record := &kgo.Record{Topic: topic, Key: []byte(key), Value: value}

	var (
		wg         sync.WaitGroup
		publishErr error
	)
	wg.Add(1)
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		defer wg.Done()
		if err != nil {
			publishErr = err
			atomic.AddInt64(&p.failed, 1)
			span.RecordError(err)
			p.logger.Error("audit publish failed",
				zap.String("topic", topic),
				zap.String("key", key),
				zap.Error(err))
			return
		}
		atomic.AddInt64(&p.published, 1)
	})
	wg.Wait()

	return publishErr
}

// Flush blocks until buffered records are sent.
func (p *Producer) Flush(ctx context.Context) error {
	return p.client.Flush(ctx)
}

// Close flushes and releases the client.
func (p *Producer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("flush on close failed", zap.Error(err))
	}
	p.client.Close()
}

// Published returns the count of acknowledged records.
func (p *Producer) Published() int64 { return atomic.LoadInt64(&p.published) }

// Failed returns the count of failed records.
func (p *Producer) Failed() int64 { return atomic.LoadInt64(&p.failed) }
