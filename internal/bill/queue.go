package bill

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueClosed is returned by Enqueue after Shutdown
var ErrQueueClosed = errors.New("queue is shutting down")

// Handler processes one bill
type Handler func(ctx context.Context, billID string) error

// Queue runs bill processing on a fixed pool of background workers
type Queue struct {
	workers int
	timeout time.Duration

	ch   chan string
	wg   sync.WaitGroup
	once sync.Once

	// quit wakes senders waiting on a full buffer
	quit     chan struct{}
	quitOnce sync.Once

	// mu is read-held while sending so ch is never closed under a sender
	mu     sync.RWMutex
	closed bool
}

// QueueOption configures a Queue
type QueueOption func(*Queue)

// WithWorkers sets the number of workers
func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithQueueSize sets how many bills may wait for a worker
func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan string, n)
		}
	}
}

// WithProcessTimeout bounds the time spent on one bill
func WithProcessTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// NewQueue creates a Queue. Bills enqueued before Start wait in the buffer.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		workers: 2,
		timeout: 2 * time.Minute,
		ch:      make(chan string, 64),
		quit:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Start launches the workers. Calls after the first are ignored.
func (q *Queue) Start(handler Handler) {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				slog.Debug("Worker started", "worker_id", workerID)

				for billID := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					err := handler(ctx, billID)
					cancel()

					if err != nil {
						slog.Error("Failed to process bill", "worker_id", workerID, "bill_id", billID, "error", err)
					} else {
						slog.Info("Bill processed", "worker_id", workerID, "bill_id", billID)
					}
				}

				slog.Debug("Worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue schedules a bill for processing. When the buffer is full it waits
// for room, for ctx to be done or for Shutdown.
func (q *Queue) Enqueue(ctx context.Context, billID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- billID:
		slog.Debug("Bill queued", "bill_id", billID)
		return nil
	default:
	}

	slog.Warn("Queue full, waiting for a worker", "bill_id", billID)
	select {
	case q.ch <- billID:
		return nil
	case <-q.quit:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting bills and waits for queued ones to finish or for
// ctx to be done.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.quitOnce.Do(func() { close(q.quit) })

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		slog.Warn("Queue shutdown interrupted", "error", ctx.Err())
		return ctx.Err()
	case <-done:
		slog.Info("Queue drained")
		return nil
	}
}
