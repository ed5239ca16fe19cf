// Package worker applies queued guess events and triggers re-estimation.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/huishype/huishype/internal/domain/fmv"
	"github.com/huishype/huishype/internal/domain/model"
	"github.com/huishype/huishype/pkg/logger"
	"github.com/huishype/huishype/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Event abstracts what workers read off the queue.
type Event = model.GuessEvent

// Recorder persists guess changes.
type Recorder interface {
	SaveGuess(ctx context.Context, g model.Guess) (model.Guess, error)
	RetractGuess(ctx context.Context, propertyID string, userID uuid.UUID) error
}

// Estimator recomputes a property's estimate after its guesses changed.
type Estimator interface {
	Estimate(ctx context.Context, propertyID string) (fmv.Result, error)
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events until its queue is drained or it is stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the event in flight.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	recorder  Recorder
	estimator Estimator
	name      string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(queue Queue, recorder Recorder, estimator Estimator, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		recorder:  recorder,
		estimator: estimator,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := w.Process(ctx, event); err != nil {
				w.logger.Error(ctx, "error processing event",
					logger.String("event_id", event.EventID),
					logger.String("property_id", event.Guess.PropertyID),
					logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker and waits for the loop to exit.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Process applies one event to the store and recomputes the property.
func (w *InMemoryWorker) Process(ctx context.Context, event Event) error { //nolint:gocritic // hugeParam: Event is passed by value through the queue
	defer metrics.WorkerBusy()()
	start := time.Now()
	defer func() {
		metrics.RecordWorkerLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	propertyID := event.Guess.PropertyID

	var err error
	switch event.Kind {
	case model.EventSubmit:
		_, err = w.recorder.SaveGuess(ctx, event.Guess)
	case model.EventRetract:
		err = w.recorder.RetractGuess(ctx, propertyID, event.Guess.UserID)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownKind, event.Kind)
	}
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordError("worker", "apply")
		return fmt.Errorf("apply %s event %s: %w", event.Kind, event.EventID, err)
	}
	metrics.RecordGuessApplied(string(event.Kind))

	result, err := w.estimator.Estimate(ctx, propertyID)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordError("worker", "estimate")
		return fmt.Errorf("estimate %s: %w", propertyID, err)
	}

	w.logger.Debug(ctx, "event applied",
		logger.String("event_id", event.EventID),
		logger.String("property_id", propertyID),
		logger.String("confidence", result.Confidence.String()),
		logger.Int("guess_count", result.GuessCount))
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	wg      sync.WaitGroup
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. A non-positive count uses a
// multiple of the CPU count.
func NewPool(workerCount int, queue Queue, recorder Recorder, estimator Estimator, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(queue, recorder, estimator, wopts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size reports the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start runs every worker in its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Shutdown closes the queue and waits for the workers to drain it, bounded by
// ctx and an overall timeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	select {
	case <-drained:
		p.logger.Info(ctx, "worker pool stopped")
		return nil
	case <-shutdownCtx.Done():
		for _, w := range p.workers {
			w.shutdownOnce.Do(func() { close(w.shutdown) })
		}
		abandoned := 0
		if d, ok := p.queue.(interface{ Discard() int }); ok {
			abandoned = d.Discard()
		}
		p.logger.Warn(ctx, "worker pool shutdown timed out", logger.Int("abandoned", abandoned))
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
}
