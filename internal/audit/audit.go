// Package audit provides a fire-and-forget sink for clinical audit events.
// Emitting never blocks the caller: events flow through a bounded channel
// into a writer (typically the Postgres audit outbox) and are dropped with
// a counter when the buffer is full.
package audit

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind classifies an audit event.
type Kind string

const (
	KindSafetyWarning Kind = "safety.warning"
	KindSafetyBlocked Kind = "safety.blocked"
	KindClaimWon      Kind = "claim.won"
	KindClaimConflict Kind = "claim.conflict"
	KindClaimFailed   Kind = "claim.failed"
)

// Event is one audit record.
type Event struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Subject string          `json:"subject"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// NewEvent builds an event with a fresh ID and timestamp. The detail value
// is JSON-marshaled into the payload; marshal failures leave it empty
// rather than failing the caller.
func NewEvent(kind Kind, subject string, detail interface{}) Event {
	e := Event{
		ID:      uuid.New().String(),
		Kind:    kind,
		Subject: subject,
		At:      time.Now().UTC(),
	}
	if detail != nil {
		if raw, err := json.Marshal(detail); err == nil {
			e.Payload = raw
		}
	}
	return e
}

// Sink accepts audit events without blocking.
type Sink interface {
	Emit(Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// Writer persists a batch position of one event. Implemented by the
// Postgres outbox writer.
type Writer interface {
	WriteEvent(ctx context.Context, e Event) error
}

// AsyncSink buffers events and drains them to a Writer on a background
// goroutine.
type AsyncSink struct {
	writer Writer
	logger *zap.Logger
	events chan Event
	done   chan struct{}
	cancel context.CancelFunc

	dropped int64
}

// NewAsyncSink creates and starts a sink with the given buffer size.
func NewAsyncSink(writer Writer, buffer int, logger *zap.Logger) *AsyncSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 1024
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &AsyncSink{
		writer: writer,
		logger: logger,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go s.drain(ctx)
	return s
}

// Emit enqueues an event. When the buffer is full the event is dropped and
// counted; audit must never block the safety gate or the claim arbitrator.
func (s *AsyncSink) Emit(e Event) {
	select {
	case s.events <- e:
	default:
		atomic.AddInt64(&s.dropped, 1)
		s.logger.Warn("audit buffer full, event dropped",
			zap.String("kind", string(e.Kind)),
			zap.String("subject", e.Subject))
	}
}

// Dropped returns the number of events lost to a full buffer.
func (s *AsyncSink) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

// Close stops the drain goroutine after flushing buffered events.
func (s *AsyncSink) Close() {
	s.cancel()
	<-s.done
}

func (s *AsyncSink) drain(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case e := <-s.events:
			s.write(e)
		case <-ctx.Done():
			// Flush whatever is left before exiting.
			for {
				select {
				case e := <-s.events:
					s.write(e)
				default:
					return
				}
			}
		}
	}
}

func (s *AsyncSink) write(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.writer.WriteEvent(ctx, e); err != nil {
		s.logger.Error("audit write failed",
			zap.String("event_id", e.ID),
			zap.String("kind", string(e.Kind)),
			zap.Error(err))
	}
}
