package taskcoord

import (
	"context"
	"testing"
	"time"

	"github.com/taskcoord/taskcoord/core"
)

// TestPoolConstructors verifies both pool constructors expose a fresh,
// empty scheduler state
// Given: a FIFO pool and a priority pool
// When: each is freshly constructed
// Then: neither carries any queued or delayed work
func TestPoolConstructors(t *testing.T) {
	// Arrange / Act
	p1 := NewGoroutineThreadPool("fifo-pool", 1)
	p2 := NewPriorityGoroutineThreadPool("prio-pool", 1)

	// Assert
	for _, p := range []*GoroutineThreadPool{p1, p2} {
		if p.QueuedTaskCount() != 0 {
			t.Errorf("QueuedTaskCount() = %d, want 0 for fresh pool %q", p.QueuedTaskCount(), p.ID())
		}
		if p.DelayedTaskCount() != 0 {
			t.Errorf("DelayedTaskCount() = %d, want 0 for fresh pool %q", p.DelayedTaskCount(), p.ID())
		}
	}
}

// TestTypeWrappersAndGlobalPoolAccessor verifies top-level wrappers return usable instances
// Given: an initialized global pool
// When: type wrapper constructors and the global pool accessor are called
// Then: wrappers return non-nil runners and tasks execute through the shared pool
func TestTypeWrappersAndGlobalPoolAccessor(t *testing.T) {
	// Arrange
	InitGlobalThreadPool(1)
	defer ShutdownGlobalThreadPool()

	// Act
	gp := GetGlobalThreadPool()

	// Assert
	if gp == nil {
		t.Fatal("GetGlobalThreadPool() returned nil")
	}

	// Act
	seq := NewSequencedTaskRunner(gp)

	// Assert
	if seq == nil {
		t.Fatal("NewSequencedTaskRunner() returned nil")
	}

	// Act
	single := NewSingleThreadTaskRunner()

	// Assert
	if single == nil {
		t.Fatal("NewSingleThreadTaskRunner() returned nil")
	}
	defer single.Shutdown()

	// Act
	par := core.NewParallelTaskRunner(gp, 1)

	// Assert
	if par == nil {
		t.Fatal("core.NewParallelTaskRunner() returned nil")
	}
	defer par.Shutdown()

	// Act
	done := make(chan struct{}, 1)
	seq.PostTask(func(ctx context.Context) {
		select {
		case done <- struct{}{}:
		default:
		}
	})

	// Assert
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("sequenced runner wrapper task did not execute")
	}
}
