// Package queue buffers guess events between the HTTP layer and the workers.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/huishype/huishype/internal/domain/model"
	"github.com/huishype/huishype/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Event is the unit carried by the queue.
type Event = model.GuessEvent

// Queue is a bounded FIFO of guess events.
type Queue interface {
	// Enqueue adds e without blocking. It returns false when the queue is
	// full, closed, or ctx is done.
	Enqueue(ctx context.Context, e Event) bool

	// Dequeue returns a channel that yields events until the queue is closed
	// and drained or ctx is done.
	Dequeue(ctx context.Context) <-chan Event

	Len(ctx context.Context) int

	Close() error

	IsClosed() bool
}

// InMemoryQueue is a channel-backed Queue.
type InMemoryQueue struct {
	events   chan Event
	capacity int

	// mu guards closed and the close of events against concurrent sends.
	mu     sync.RWMutex
	closed bool

	// done ends every Dequeue stream, drained or not.
	done        chan struct{}
	discardOnce sync.Once
}

// NewInMemoryQueue creates a queue with the default capacity, adjusted by opts.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity, done: make(chan struct{})}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool { //nolint:gocritic // hugeParam: sent by value over the channel
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected()
		metrics.RecordError("queue", "closed")
		return false
	}
	if ctx.Err() != nil {
		metrics.RecordQueueRejected()
		metrics.RecordError("queue", "context_cancelled")
		return false
	}

	select {
	case q.events <- e:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.events))
		return true
	default:
		metrics.RecordQueueRejected()
		metrics.RecordError("queue", "queue_full")
		return false
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-q.done:
				return
			default:
			}
			select {
			case <-ctx.Done():
				return
			case <-q.done:
				return
			case e, ok := <-q.events:
				if !ok {
					return
				}
				select {
				case out <- e:
					metrics.RecordQueueDequeue()
					metrics.UpdateQueueSize(len(q.events))
					if !e.TS.IsZero() {
						metrics.RecordQueueWait(float64(time.Since(e.TS).Microseconds()) / 1000)
					}
				case <-ctx.Done():
					return
				case <-q.done:
					metrics.RecordError("queue", "discarded")
					return
				}
			}
		}
	}()
	return out
}

// Len implements Queue.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.events)
	metrics.UpdateQueueSize(size)
	return size
}

// Capacity reports the buffer size.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close stops accepting events. Buffered events can still be dequeued.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// Discard closes the queue and ends every Dequeue stream even if events
// remain. Events still buffered, or held by a stream whose reader is gone,
// are dropped. It returns how many were left in the buffer.
func (q *InMemoryQueue) Discard() int {
	_ = q.Close()
	q.discardOnce.Do(func() { close(q.done) })
	left := len(q.events)
	metrics.UpdateQueueSize(left)
	return left
}

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
