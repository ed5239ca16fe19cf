package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/huishype/huishype/internal/domain/model"
)

func submit(id, property string, price float64) model.GuessEvent {
	return model.GuessEvent{
		EventID: id,
		Kind:    model.EventSubmit,
		Guess:   model.Guess{PropertyID: property, UserID: uuid.New(), Price: price},
		TS:      time.Now(),
	}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Capacity(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	if !q.Enqueue(ctx, submit("event1", "p-1", 300000)) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	event := <-q.Dequeue(dctx)
	if event.EventID != "event1" || event.Guess.Price != 300000 {
		t.Errorf("unexpected event %+v", event)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, submit("event1", "p-1", 1)) || !q.Enqueue(ctx, submit("event2", "p-1", 2)) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, submit("event3", "p-1", 3)) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, submit("event1", "p-1", 1)) {
		t.Error("expected enqueue to fail on a cancelled context")
	}

	select {
	case _, ok := <-q.Dequeue(ctx):
		if ok {
			t.Error("expected no event on a cancelled context")
		}
	case <-time.After(time.Second):
		t.Error("dequeue channel not closed after cancel")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const producers, perProducer = 10, 100

	var consumed sync.Map
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range q.Dequeue(ctx) {
				consumed.Store(e.EventID, true)
			}
		}()
	}

	var pg sync.WaitGroup
	for i := 0; i < producers; i++ {
		pg.Add(1)
		go func(id int) {
			defer pg.Done()
			for j := 0; j < perProducer; j++ {
				e := submit(fmt.Sprintf("event%d_%d", id, j), fmt.Sprintf("p-%d", id), float64(j+1))
				for !q.Enqueue(ctx, e) {
					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}
	pg.Wait()

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()

	n := 0
	consumed.Range(func(_, _ any) bool { n++; return true })
	if n != producers*perProducer {
		t.Errorf("expected %d consumed events, got %d", producers*perProducer, n)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, submit("event1", "p-1", 1)) || !q.Enqueue(ctx, submit("event2", "p-1", 2)) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if q.Enqueue(ctx, submit("event3", "p-1", 3)) {
		t.Error("expected enqueue to fail after closing")
	}

	// Buffered events drain before the channel closes.
	var got []string
	timeout := time.After(time.Second)
	ch := q.Dequeue(ctx)
	for done := false; !done; {
		select {
		case e, ok := <-ch:
			if !ok {
				done = true
				break
			}
			got = append(got, e.EventID)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
	if len(got) != 2 || got[0] != "event1" || got[1] != "event2" {
		t.Errorf("expected drained events in order, got %v", got)
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}

func TestInMemoryQueue_DiscardEndsStreams(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !q.Enqueue(ctx, submit(fmt.Sprintf("event%d", i), "p-1", 1)) {
			t.Fatal("expected enqueue to succeed")
		}
	}

	// Nobody reads: the stream goroutine ends up holding one event.
	out := q.Dequeue(ctx)
	time.Sleep(20 * time.Millisecond)

	if left := q.Discard(); left > 2 {
		t.Errorf("expected at most 2 buffered events, got %d", left)
	}
	if !q.IsClosed() {
		t.Error("expected Discard to close the queue")
	}
	if q.Enqueue(ctx, submit("late", "p-1", 1)) {
		t.Error("expected enqueue after Discard to fail")
	}

	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				// A second Discard is harmless.
				q.Discard()
				return
			}
		case <-timeout:
			t.Fatal("stream still open after Discard")
		}
	}
}
