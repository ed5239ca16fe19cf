package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	queue "github.com/huishype/huishype/internal/adapters/mq/queue"
	worker "github.com/huishype/huishype/internal/adapters/mq/worker"
	"github.com/huishype/huishype/internal/domain/fmv"
	model "github.com/huishype/huishype/internal/domain/model"
	logging "github.com/huishype/huishype/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	eventChan chan queue.Event
	closeOnce sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{eventChan: make(chan queue.Event, 16)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Event { return mq.eventChan }

func (mq *mockQueue) Close() error {
	mq.closeOnce.Do(func() { close(mq.eventChan) })
	return nil
}

type mockRecorder struct {
	mu        sync.Mutex
	saved     map[string]float64 // property/user -> price
	retracted map[string]bool
	err       error
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{saved: map[string]float64{}, retracted: map[string]bool{}}
}

func key(propertyID string, userID uuid.UUID) string { return propertyID + "/" + userID.String() }

func (r *mockRecorder) SaveGuess(_ context.Context, g model.Guess) (model.Guess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return model.Guess{}, r.err
	}
	r.saved[key(g.PropertyID, g.UserID)] = g.Price
	return g, nil
}

func (r *mockRecorder) RetractGuess(_ context.Context, propertyID string, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.retracted[key(propertyID, userID)] = true
	return nil
}

func (r *mockRecorder) savedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

// stuckRecorder holds every SaveGuess until release is closed.
type stuckRecorder struct {
	*mockRecorder
	release chan struct{}
}

func (r *stuckRecorder) SaveGuess(ctx context.Context, g model.Guess) (model.Guess, error) {
	<-r.release
	return r.mockRecorder.SaveGuess(ctx, g)
}

type mockEstimator struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func newMockEstimator() *mockEstimator { return &mockEstimator{calls: map[string]int{}} }

func (e *mockEstimator) Estimate(_ context.Context, propertyID string) (fmv.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[propertyID]++
	if e.err != nil {
		return fmv.Result{}, e.err
	}
	return fmv.Result{Confidence: fmv.ConfidenceLow, GuessCount: 1}, nil
}

func (e *mockEstimator) callsFor(propertyID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[propertyID]
}

func submitEvent(id, property string, user uuid.UUID, price float64) queue.Event {
	return queue.Event{
		EventID: id,
		Kind:    model.EventSubmit,
		Guess:   model.Guess{PropertyID: property, UserID: user, Price: price},
		TS:      time.Now(),
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()
		ctx := context.Background()

		q := newMockQueue()
		rec := newMockRecorder()
		est := newMockEstimator()
		w := worker.NewInMemoryWorker(q, rec, est, worker.WithName("test-worker"))
		user := uuid.New()

		convey.Convey("When a submit event is processed", func() {
			err := w.Process(ctx, submitEvent("e1", "p-1", user, 300000))

			convey.Convey("Then the guess is saved and the property recomputed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.saved[key("p-1", user)], convey.ShouldEqual, 300000)
				convey.So(est.callsFor("p-1"), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When a retract event is processed", func() {
			err := w.Process(ctx, queue.Event{EventID: "e2", Kind: model.EventRetract, Guess: model.Guess{PropertyID: "p-1", UserID: user}})

			convey.Convey("Then the guess is retracted and the property recomputed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.retracted[key("p-1", user)], convey.ShouldBeTrue)
				convey.So(est.callsFor("p-1"), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When an event of unknown kind is processed", func() {
			err := w.Process(ctx, queue.Event{EventID: "e3", Kind: "bump", Guess: model.Guess{PropertyID: "p-1"}})

			convey.Convey("Then it is rejected without a recompute", func() {
				convey.So(errors.Is(err, worker.ErrUnknownKind), convey.ShouldBeTrue)
				convey.So(est.callsFor("p-1"), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the store fails", func() {
			rec.err = errors.New("disk full")
			err := w.Process(ctx, submitEvent("e4", "p-1", user, 1))

			convey.Convey("Then the error is returned and no recompute happens", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "disk full")
				convey.So(est.callsFor("p-1"), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the estimate fails", func() {
			est.err = errors.New("property gone")
			err := w.Process(ctx, submitEvent("e5", "p-2", user, 1))

			convey.Convey("Then the error names the property", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "p-2")
			})
		})

		convey.Convey("When the worker runs and the queue closes", func() {
			done := make(chan struct{})
			go func() {
				w.Run(ctx)
				close(done)
			}()
			q.eventChan <- submitEvent("e6", "p-3", user, 1)
			_ = q.Close()

			convey.Convey("Then it drains the event and exits", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					t.Fatal("worker did not exit")
				}
				convey.So(est.callsFor("p-3"), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the worker is shut down while idle", func() {
			go w.Run(ctx)
			sctx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()

			convey.Convey("Then Shutdown returns without error and is repeatable", func() {
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue", t, func() {
		_ = logging.Init()
		ctx := context.Background()

		q := queue.NewInMemoryQueue(queue.WithCapacity(256))
		rec := newMockRecorder()
		est := newMockEstimator()
		pool := worker.NewPool(4, q, rec, est)

		convey.So(pool.Size(), convey.ShouldEqual, 4)
		pool.Start(ctx)

		convey.Convey("When many events are enqueued and the pool is shut down", func() {
			const n = 100
			for i := 0; i < n; i++ {
				ok := q.Enqueue(ctx, submitEvent(fmt.Sprintf("e%d", i), fmt.Sprintf("p-%d", i%10), uuid.New(), float64(100000+i)))
				convey.So(ok, convey.ShouldBeTrue)
			}
			err := pool.Shutdown(ctx)

			convey.Convey("Then every event is applied before Shutdown returns", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.savedCount(), convey.ShouldEqual, n)
				total := 0
				for i := 0; i < 10; i++ {
					total += est.callsFor(fmt.Sprintf("p-%d", i))
				}
				convey.So(total, convey.ShouldEqual, n)
			})
		})
	})

	convey.Convey("Given a pool whose only worker is stuck", t, func() {
		_ = logging.Init()
		ctx := context.Background()

		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		rec := &stuckRecorder{mockRecorder: newMockRecorder(), release: make(chan struct{})}
		pool := worker.NewPool(1, q, rec, newMockEstimator())
		pool.Start(ctx)

		for i := 0; i < 3; i++ {
			convey.So(q.Enqueue(ctx, submitEvent(fmt.Sprintf("e%d", i), "p-1", uuid.New(), 100000)), convey.ShouldBeTrue)
		}

		convey.Convey("When shutdown runs out of time", func() {
			sctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
			err := pool.Shutdown(sctx)

			convey.Convey("Then it reports the timeout and abandons the rest of the queue", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)

				close(rec.release)
				time.Sleep(50 * time.Millisecond)
				convey.So(rec.savedCount(), convey.ShouldEqual, 1)
			})
		})
	})

	convey.Convey("Given a non-positive worker count", t, func() {
		_ = logging.Init()
		pool := worker.NewPool(0, newMockQueue(), newMockRecorder(), newMockEstimator())

		convey.Convey("Then a CPU-based default is used", func() {
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		})
	})
}
