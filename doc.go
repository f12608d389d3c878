// Package taskcoord tames unstructured, fire-and-forget asynchronous work by
// routing every submission through one of three coordinators, each imposing
// its own ordering, concurrency, and cancellation semantics over a shared
// TaskNode primitive.
//
// The coordinators are:
//
//	KeyedTaskManager — partitions work by a Key into independent chains,
//	each obeying DropCurrent or WaitInCurrent semantics, with a process-wide
//	pause/resume toggle.
//
//	SerialTaskQueue — a single-head FIFO chain; the simple case of a
//	KeyedTaskManager with exactly one key.
//
//	StackScheduler — a LIFO scheduler with a concurrency ceiling; the
//	newest submission runs before older waiting work whenever a slot opens.
//
// # Quick Start
//
// Submissions return a Handle that resolves once, with a value, an error, or
// Cancelled:
//
//	mgr := taskcoord.NewKeyedTaskManager(rt)
//	handle := taskcoord.SubmitKeyed(mgr, "refresh", key, taskcoord.DropCurrent,
//		core.TaskPriorityUserVisible, func(ctx context.Context) (int, error) {
//			return fetch(ctx)
//		})
//	value, err := handle.Await(ctx)
//
// # Key Concepts
//
// Key: a set-semantic identity value. Two keys are equal iff their atom sets
// are equal; Combine is commutative.
//
// TaskNode: the shared linked-list element every coordinator composes. A
// node activates at most once, finishes or is invalidated exactly once, and
// wakes every waiter exactly once.
//
// ContinuationBridge[R]: the one-shot sink tying a Handle to its operation's
// eventual result. A bridge destroyed without a prior resume auto-resumes
// with Cancelled.
//
// # Thread Safety
//
// Each coordinator guards its structural state with a single non-reentrant
// lock; TaskNode has its own lock. Lock order is always coordinator before
// node, never the reverse. No user code ever runs under either lock.
//
// # Ambient runtime
//
// Coordinators spawn activated nodes onto any core.TaskRunner. The package
// also provides GoroutineThreadPool, a worker pool (core.ThreadPool) backed
// by core.TaskScheduler, for callers who don't already have a runtime of
// their own — see InitGlobalThreadPool and CreateTaskRunner.
//
// For more details, see https://github.com/taskcoord/taskcoord
package taskcoord
