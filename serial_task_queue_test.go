package taskcoord

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/taskcoord/taskcoord/core"
)

func newSerialQueueForTest(t *testing.T) *SerialTaskQueue {
	t.Helper()
	pool, rt := NewDefaultRuntime(4)
	t.Cleanup(pool.Stop)
	return NewSerialTaskQueue(rt)
}

// TestSubmitSerial_FirstSubmissionActivatesImmediately verifies an empty
// queue's first submission becomes head and runs without waiting.
func TestSubmitSerial_FirstSubmissionActivatesImmediately(t *testing.T) {
	// Arrange
	q := newSerialQueueForTest(t)

	// Act
	handle := SubmitSerial(q, "op", core.TaskPriorityUserVisible, func(ctx context.Context) (int, error) {
		return 5, nil
	})
	value, err := handle.Await(context.Background())

	// Assert
	if err != nil {
		t.Fatalf("Await returned err = %v, want nil", err)
	}
	if value != 5 {
		t.Errorf("Await returned value = %d, want 5", value)
	}
}

// TestSerialTaskQueue_EnforcesFIFOOrder verifies three submissions run in
// the order they were submitted, one at a time.
func TestSerialTaskQueue_EnforcesFIFOOrder(t *testing.T) {
	// Arrange
	q := newSerialQueueForTest(t)
	var mu sync.Mutex
	var order []int

	block := make(chan struct{})
	record := func(n int) func(ctx context.Context) (int, error) {
		return func(ctx context.Context) (int, error) {
			if n == 1 {
				<-block
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return n, nil
		}
	}

	h1 := SubmitSerial(q, "1", core.TaskPriorityUserVisible, record(1))
	h2 := SubmitSerial(q, "2", core.TaskPriorityUserVisible, record(2))
	h3 := SubmitSerial(q, "3", core.TaskPriorityUserVisible, record(3))

	// Act
	close(block)
	h1.Await(context.Background())
	h2.Await(context.Background())
	h3.Await(context.Background())

	// Assert
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("execution order = %v, want [1 2 3]", order)
	}
}

// TestSerialTaskQueue_HasWorkReflectsQueueState verifies HasWork toggles
// correctly across submission and drain.
func TestSerialTaskQueue_HasWorkReflectsQueueState(t *testing.T) {
	// Arrange
	q := newSerialQueueForTest(t)
	if q.HasWork() {
		t.Fatal("HasWork() = true on an empty queue")
	}

	block := make(chan struct{})
	handle := SubmitSerial(q, "op", core.TaskPriorityUserVisible, func(ctx context.Context) (int, error) {
		<-block
		return 0, nil
	})

	// Act / Assert
	if !q.HasWork() {
		t.Error("HasWork() = false while a submission is in flight")
	}
	close(block)
	handle.Await(context.Background())

	time.Sleep(10 * time.Millisecond)
	if q.HasWork() {
		t.Error("HasWork() = true after queue drained")
	}
}

// TestSerialTaskQueue_CancelAllInvalidatesQueuedWork verifies CancelAll
// cancels both the running head and everything chained after it.
func TestSerialTaskQueue_CancelAllInvalidatesQueuedWork(t *testing.T) {
	// Arrange
	q := newSerialQueueForTest(t)
	started := make(chan struct{})
	h1 := SubmitSerial(q, "1", core.TaskPriorityUserVisible, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	h2 := SubmitSerial(q, "2", core.TaskPriorityUserVisible, func(ctx context.Context) (int, error) {
		return 2, nil
	})
	<-started

	// Act
	q.CancelAll()
	_, err1 := h1.Await(context.Background())
	_, err2 := h2.Await(context.Background())

	// Assert
	if !errors.Is(err1, Cancelled) {
		t.Errorf("err1 = %v, want Cancelled", err1)
	}
	if !errors.Is(err2, Cancelled) {
		t.Errorf("err2 = %v, want Cancelled", err2)
	}
}

// TestSerialTaskQueue_WaitUntilAllDrainedIncludesLateArrivals verifies
// WaitUntilAllDrained observes work submitted while it's already waiting.
func TestSerialTaskQueue_WaitUntilAllDrainedIncludesLateArrivals(t *testing.T) {
	// Arrange
	q := newSerialQueueForTest(t)
	block := make(chan struct{})
	SubmitSerial(q, "1", core.TaskPriorityUserVisible, func(ctx context.Context) (int, error) {
		<-block
		return 0, nil
	})

	done := make(chan struct{})
	go func() {
		q.WaitUntilAllDrained(context.Background())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	SubmitSerial(q, "2", core.TaskPriorityUserVisible, func(ctx context.Context) (int, error) {
		return 0, nil
	})

	// Act
	close(block)

	// Assert
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitUntilAllDrained did not return after all work drained")
	}
	if q.HasWork() {
		t.Error("HasWork() = true after WaitUntilAllDrained returned")
	}
}
