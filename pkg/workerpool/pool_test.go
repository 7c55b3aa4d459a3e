package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Workers:         4,
		QueueSize:       64,
		MaxRetries:      2,
		RetryDelay:      time.Millisecond,
		ShutdownTimeout: 2 * time.Second,
	}
}

func TestPoolProcessesAllTasks(t *testing.T) {
	var processed int64
	pool, err := New(testConfig(), func(ctx context.Context, task *Task) *Result {
		atomic.AddInt64(&processed, 1)
		return &Result{TaskID: task.ID, Success: true}
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Start()

	const n = 50
	for i := 0; i < n; i++ {
		if err := pool.Submit(&Task{ID: fmt.Sprintf("task-%d", i)}); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	pool.Stop()

	if got := atomic.LoadInt64(&processed); got != n {
		t.Errorf("processed = %d, want %d", got, n)
	}
	stats := pool.Stats()
	if stats.Submitted != n || stats.Completed != n || stats.Failed != 0 {
		t.Errorf("stats = %+v, want %d submitted and completed", stats, n)
	}
}

func TestPoolRetriesUntilSuccess(t *testing.T) {
	var attempts int64
	pool, err := New(testConfig(), func(ctx context.Context, task *Task) *Result {
		if atomic.AddInt64(&attempts, 1) < 3 {
			return &Result{TaskID: task.ID, Error: errors.New("transient")}
		}
		return &Result{TaskID: task.ID, Success: true}
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Start()

	if err := pool.Submit(&Task{ID: "flaky"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	pool.Stop()

	if got := atomic.LoadInt64(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	stats := pool.Stats()
	if stats.Completed != 1 || stats.Failed != 0 || stats.Retried != 2 {
		t.Errorf("stats = %+v, want 1 completed, 2 retried", stats)
	}
}

func TestPoolFailsAfterMaxRetries(t *testing.T) {
	pool, err := New(testConfig(), func(ctx context.Context, task *Task) *Result {
		return &Result{TaskID: task.ID, Error: errors.New("permanent")}
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Start()

	if err := pool.Submit(&Task{ID: "doomed"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var result *Result
	select {
	case result = <-pool.Results():
	case <-time.After(2 * time.Second):
		t.Fatal("no result within deadline")
	}
	pool.Stop()

	if result.Success {
		t.Error("result.Success = true, want false")
	}
	if result.Error == nil {
		t.Error("result.Error = nil, want error")
	}
	if stats := pool.Stats(); stats.Failed != 1 {
		t.Errorf("stats.Failed = %d, want 1", stats.Failed)
	}
}

func TestPoolSubmitFullQueue(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1

	block := make(chan struct{})
	pool, err := New(cfg, func(ctx context.Context, task *Task) *Result {
		<-block
		return &Result{TaskID: task.ID, Success: true}
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Start()
	defer func() {
		close(block)
		pool.Stop()
	}()

	// First task occupies the worker, second fills the queue; further
	// submits must be rejected rather than block.
	sawFull := false
	for i := 0; i < 5; i++ {
		if err := pool.Submit(&Task{ID: fmt.Sprintf("t%d", i)}); err != nil {
			sawFull = true
			break
		}
	}
	if !sawFull {
		t.Error("expected a queue-full error after saturating the pool")
	}
}

func TestPoolSubmitAfterStop(t *testing.T) {
	pool, err := New(testConfig(), func(ctx context.Context, task *Task) *Result {
		return &Result{TaskID: task.ID, Success: true}
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Start()
	pool.Stop()

	if err := pool.Submit(&Task{ID: "late"}); err == nil {
		t.Error("Submit after Stop should fail")
	}
}

func TestPoolRequiresWorkerFunc(t *testing.T) {
	if _, err := New(testConfig(), nil, nil); err == nil {
		t.Error("New with nil worker func should fail")
	}
}
