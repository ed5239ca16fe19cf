// Package service ties storage, the estimation engine, the divergence board
// and the guess queue together behind the operations the API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	eventqueue "github.com/huishype/huishype/internal/adapters/mq/queue"
	workerpool "github.com/huishype/huishype/internal/adapters/mq/worker"
	"github.com/huishype/huishype/internal/adapters/repository"
	"github.com/huishype/huishype/internal/domain/dedupe"
	"github.com/huishype/huishype/internal/domain/fmv"
	"github.com/huishype/huishype/internal/domain/model"
	"github.com/huishype/huishype/internal/domain/types"
	"github.com/huishype/huishype/pkg/logger"
	"github.com/huishype/huishype/pkg/metrics"
)

const (
	defaultQueueSize            = 10_000
	defaultDedupeSize           = 50_000
	defaultRecomputeConcurrency = 8
	defaultWorkerMultiplier     = 2
	propertyLockStripes         = 64
)

// Publisher receives every freshly computed estimate.
type Publisher interface {
	Publish(ctx context.Context, propertyID string, res fmv.Result)
}

// Service implements the API dependencies for the estimation system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	board      *repository.Board
	deduper    dedupe.Deduper
	estimator  *fmv.Estimator
	publisher  Publisher
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool

	// Configuration
	workerCount          int
	queueSize            int
	dedupeSize           int
	recomputeConcurrency int

	// Estimates for one property are computed and published in order.
	propertyLocks [propertyLockStripes]sync.Mutex

	started   bool
	estimates atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the guess queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the idempotency cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRecomputeConcurrency bounds how many properties RecomputeAll estimates at once.
func WithRecomputeConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.recomputeConcurrency = n
		}
	}
}

// WithEstimator replaces the default estimation policy.
func WithEstimator(e *fmv.Estimator) Option {
	return func(s *Service) {
		if e != nil {
			s.estimator = e
		}
	}
}

// WithPublisher sets where fresh estimates are pushed.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithBoard replaces the divergence board.
func WithBoard(b *repository.Board) Option {
	return func(s *Service) {
		if b != nil {
			s.board = b
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service on top of store.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:                store,
		workerCount:          runtime.NumCPU() * defaultWorkerMultiplier,
		queueSize:            defaultQueueSize,
		dedupeSize:           defaultDedupeSize,
		recomputeConcurrency: defaultRecomputeConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.estimator == nil {
		s.estimator = fmv.New()
	}
	if s.board == nil {
		s.board = repository.NewBoard()
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

func (s *Service) log() logger.Logger {
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s.logger
}

// Start starts the worker pool and rebuilds the divergence board from storage.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	if s.store == nil {
		s.mu.Unlock()
		return ErrNoStore
	}
	l := s.log()
	l.Info(ctx, "starting fmv service...")

	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.store, s)
	// Workers outlive the caller's context so Stop can drain the queue.
	s.workerPool.Start(context.WithoutCancel(ctx))
	s.started = true
	s.mu.Unlock()

	n, err := s.RecomputeAll(ctx)
	if err != nil {
		l.Error(ctx, "initial recompute failed", logger.Error(err))
		if stopErr := s.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			l.Error(ctx, "rollback after failed start", logger.Error(stopErr))
		}
		return fmt.Errorf("initial recompute: %w", err)
	}

	l.Info(ctx, "fmv service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Int("properties", n),
	)
	return nil
}

// Stop drains the queue and stops the workers. The store stays open.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.log().Info(ctx, "stopping fmv service...")
	s.started = false

	if err := s.workerPool.Shutdown(ctx); err != nil {
		return fmt.Errorf("stop workers: %w", err)
	}
	s.log().Info(ctx, "fmv service stopped")
	return nil
}

// SubmitGuess queues a guess for asynchronous persistence. It reports
// duplicate=true when the event id was already accepted. An empty event id
// disables deduplication for that call.
func (s *Service) SubmitGuess(ctx context.Context, ev model.GuessEvent) (bool, error) { //nolint:gocritic // hugeParam: event is copied onto the queue
	ev.Kind = model.EventSubmit
	if err := ev.Guess.Validate(); err != nil {
		metrics.RecordGuessRejected("invalid")
		return false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := s.store.GetProperty(ctx, ev.Guess.PropertyID); err != nil {
		metrics.RecordGuessRejected("unknown_property")
		return false, err
	}
	return s.enqueue(ctx, ev)
}

// RetractGuess queues the retraction of the user's guess on a property.
func (s *Service) RetractGuess(ctx context.Context, propertyID string, userID uuid.UUID) error {
	if propertyID == "" || userID == uuid.Nil {
		return fmt.Errorf("%w: property and user are required", ErrInvalidInput)
	}
	ev := model.GuessEvent{
		Kind:  model.EventRetract,
		Guess: model.Guess{PropertyID: propertyID, UserID: userID},
	}
	_, err := s.enqueue(ctx, ev)
	return err
}

func (s *Service) enqueue(ctx context.Context, ev model.GuessEvent) (bool, error) { //nolint:gocritic // hugeParam: event is copied onto the queue
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false, ErrStopped
	}

	key := ""
	if ev.EventID != "" {
		// Keys are scoped per user so clients cannot collide.
		key = ev.Guess.UserID.String() + ":" + ev.EventID
		if s.deduper.SeenAndRecord(ctx, key) {
			metrics.RecordGuessDuplicate()
			s.log().Debug(ctx, "duplicate guess event", logger.String("event_id", ev.EventID))
			return true, nil
		}
	} else {
		ev.EventID = uuid.NewString()
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now()
	}

	if !s.eventQueue.Enqueue(ctx, ev) {
		if key != "" {
			s.deduper.Unrecord(ctx, key)
		}
		metrics.RecordGuessRejected("backpressure")
		return false, ErrBackpressure
	}
	metrics.RecordGuessReceived(string(ev.Kind))
	return false, nil
}

func (s *Service) lockProperty(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	m := &s.propertyLocks[h.Sum32()%propertyLockStripes]
	m.Lock()
	return m.Unlock
}

func (s *Service) compute(ctx context.Context, propertyID string) (fmv.Result, error) {
	p, err := s.store.GetProperty(ctx, propertyID)
	if err != nil {
		return fmv.Result{}, err
	}
	guesses, err := s.store.ActiveGuesses(ctx, propertyID)
	if err != nil {
		return fmv.Result{}, err
	}
	return s.estimator.Estimate(guesses, p.WOZValue, p.AskingPrice), nil
}

// Estimate recomputes a property's estimate from storage, updates the
// divergence board and publishes the result.
func (s *Service) Estimate(ctx context.Context, propertyID string) (fmv.Result, error) {
	unlock := s.lockProperty(propertyID)
	defer unlock()

	start := time.Now()
	res, err := s.compute(ctx, propertyID)
	if err != nil {
		metrics.RecordEstimateError()
		return fmv.Result{}, fmt.Errorf("estimate %s: %w", propertyID, err)
	}
	s.board.Put(ctx, propertyID, res)
	if s.publisher != nil {
		s.publisher.Publish(ctx, propertyID, res)
	}
	s.estimates.Add(1)
	metrics.RecordEstimate(res.Confidence.String(), res.OutliersTrimmed,
		float64(time.Since(start).Microseconds())/1000)
	return res, nil
}

// CurrentFMV computes the estimate from the stored state and refreshes the
// board entry. Nothing is published.
func (s *Service) CurrentFMV(ctx context.Context, propertyID string) (fmv.Result, error) {
	unlock := s.lockProperty(propertyID)
	defer unlock()

	res, err := s.compute(ctx, propertyID)
	if err != nil {
		return fmv.Result{}, fmt.Errorf("fmv %s: %w", propertyID, err)
	}
	s.board.Put(ctx, propertyID, res)
	return res, nil
}

// UpsertProperty stores a property and re-estimates it against its new
// reference values.
func (s *Service) UpsertProperty(ctx context.Context, p model.Property) (fmv.Result, error) {
	if _, err := s.store.UpsertProperty(ctx, p); err != nil {
		return fmv.Result{}, err
	}
	return s.Estimate(ctx, p.ID)
}

// SetKarma stores a user's karma, creating the user if needed. An empty
// handle keeps the stored one. Existing estimates pick up the new karma when
// their property is next recomputed.
func (s *Service) SetKarma(ctx context.Context, id uuid.UUID, handle string, karma int) (model.User, error) {
	u := model.User{ID: id, Handle: handle, Karma: karma}
	if handle == "" {
		existing, err := s.store.GetUser(ctx, id)
		switch {
		case err == nil:
			u.Handle = existing.Handle
		case !errors.Is(err, ErrNotFound):
			return model.User{}, fmt.Errorf("set karma %s: %w", id, err)
		}
	}
	if err := s.store.UpsertUser(ctx, u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// PropertyStats counts the guesses stored for a property and how many of
// them feed its estimate.
func (s *Service) PropertyStats(ctx context.Context, propertyID string) (types.PropertyStats, error) {
	if _, err := s.store.GetProperty(ctx, propertyID); err != nil {
		return types.PropertyStats{}, err
	}
	stored, err := s.store.CountGuesses(ctx, propertyID)
	if err != nil {
		return types.PropertyStats{}, err
	}
	active, err := s.store.ActiveGuesses(ctx, propertyID)
	if err != nil {
		return types.PropertyStats{}, err
	}
	return types.PropertyStats{
		PropertyID:      propertyID,
		StoredGuesses:   stored,
		ActiveGuesses:   len(active),
		ExcludedGuesses: stored - len(active),
	}, nil
}

// TopDivergence returns the n most underpriced properties.
func (s *Service) TopDivergence(ctx context.Context, n int) ([]types.Entry, error) {
	return s.board.TopN(ctx, n)
}

// DivergenceRank returns a property's position on the divergence board.
func (s *Service) DivergenceRank(ctx context.Context, propertyID string) (types.Entry, error) {
	return s.board.Rank(ctx, propertyID)
}

// RecomputeAll re-estimates every stored property with bounded concurrency
// and returns how many were processed.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	ids, err := s.store.ListPropertyIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("recompute: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.recomputeConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			_, err := s.Estimate(gctx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("recompute: %w", err)
	}
	metrics.RecordRecompute()
	return len(ids), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	boardSize := s.board.Count(ctx)
	stats := map[string]interface{}{
		"started":              s.started,
		"workerCount":          s.workerCount,
		"queueSize":            s.queueSize,
		"dedupeSize":           s.dedupeSize,
		"recomputeConcurrency": s.recomputeConcurrency,
		"dedupeEntries":        s.deduper.Size(),
		"boardSize":            boardSize,
		"estimates":            s.estimates.Load(),
	}
	if s.started {
		queueLen := s.eventQueue.Len(ctx)
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
	}
	metrics.UpdateBoardSize(boardSize)
	return stats
}
