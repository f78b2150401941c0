package export

import (
	"context"
	"errors"
	"testing"
	"time"
)

func qp(id string) QueuedPoint { return QueuedPoint{DeviceID: id} }

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(4)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Put(ctx, qp(id)); err != nil {
			t.Fatalf("Put(%s) error = %v", id, err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Take(ctx)
		if err != nil {
			t.Fatalf("Take() error = %v", err)
		}
		if got.DeviceID != want {
			t.Errorf("Take() = %s, want %s", got.DeviceID, want)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestQueue_PushFront(t *testing.T) {
	q := NewQueue(2)
	ctx := context.Background()
	_ = q.Put(ctx, qp("a"))
	_ = q.Put(ctx, qp("b"))

	q.PushFront(qp("retry"))
	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3 (PushFront may exceed capacity)", q.Len())
	}
	got, _ := q.Take(ctx)
	if got.DeviceID != "retry" {
		t.Errorf("Take() = %s, want retry", got.DeviceID)
	}
}

func TestQueue_PutBlocksWhenFull(t *testing.T) {
	q := NewQueue(1)
	ctx := context.Background()
	_ = q.Put(ctx, qp("a"))

	done := make(chan error, 1)
	go func() { done <- q.Put(ctx, qp("b")) }()

	select {
	case <-done:
		t.Fatal("Put() returned while queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := q.Take(ctx); err != nil {
		t.Fatalf("Take() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Put() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Put() did not resume after space was freed")
	}
}

func TestQueue_Cancellation(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())

	takeErr := make(chan error, 1)
	go func() {
		_, err := q.Take(ctx)
		takeErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-takeErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Take() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Take() did not return after cancel")
	}

	_ = q.Put(context.Background(), qp("a"))
	if err := q.Put(ctx, qp("b")); !errors.Is(err, context.Canceled) {
		t.Errorf("Put() on full queue with cancelled ctx = %v, want context.Canceled", err)
	}
}
