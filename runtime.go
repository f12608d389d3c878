package taskcoord

import (
	"context"

	"github.com/taskcoord/taskcoord/core"
)

// NewDefaultRuntime builds the ambient asynchronous runtime a coordinator
// needs: spawnable tasks, cooperative cancellation via context, and
// per-task completion observed through TaskNode.Wait. It is a
// core.ParallelTaskRunner backed by a GoroutineThreadPool-driven
// core.TaskScheduler, with no concurrency ceiling of its own — any ceiling
// belongs to the coordinator (StackScheduler), not the runtime layer.
//
// workers is the worker-pool size; it bounds how many nodes can truly run
// in parallel regardless of what a coordinator's own policy allows through.
func NewDefaultRuntime(workers int) (*GoroutineThreadPool, core.TaskRunner) {
	return NewDefaultRuntimeWithLogger(workers, core.NewNoOpLogger())
}

// NewDefaultRuntimeWithLogger is NewDefaultRuntime with a structured logger
// wired into the runtime layer itself: the ParallelTaskRunner (and its
// internal scheduling goroutine) logs barrier scheduling, shutdown, and
// panic recovery through logger, the same Logger coordinators use for
// their own structural events.
func NewDefaultRuntimeWithLogger(workers int, logger core.Logger) (*GoroutineThreadPool, core.TaskRunner) {
	pool := NewPriorityGoroutineThreadPool("taskcoord-runtime", workers)
	pool.Start(context.Background())
	runner := core.NewParallelTaskRunner(pool, maxRuntimeConcurrency)
	runner.SetLogger(logger)
	return pool, runner
}

// maxRuntimeConcurrency is effectively "unbounded" at the runtime layer —
// coordinators impose their own ceilings, if any.
const maxRuntimeConcurrency = 10000
