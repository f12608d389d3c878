package taskcoord

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskcoord/taskcoord/core"
)

// NodeFactory is the deferred operation a TaskNode wraps. It receives the
// node's own context (cancelled on invalidation) and a reference to the
// node itself, so that the operation's trailing step can call back into the
// owning coordinator once it completes.
type NodeFactory func(ctx context.Context, self *TaskNode)

// NodeMetrics receives per-node completion telemetry. A coordinator wires
// one in via its WithXMetrics option; observability/prometheus's
// CoordinatorExporter satisfies this interface directly.
type NodeMetrics interface {
	ObserveNode(coordinatorName string, duration time.Duration, invalidated bool)
}

// TaskNode is the shared linked-list element every coordinator composes: a
// singly-linked chain element wrapping a deferred asynchronous operation,
// observable for completion or invalidation. All three flags below are
// monotonic — once set, never cleared.
type TaskNode struct {
	Label string
	id    string

	runtime  core.TaskRunner
	priority core.TaskPriority
	factory  NodeFactory

	mu          sync.Mutex
	activated   bool
	finished    bool
	invalidated bool
	cancel      context.CancelFunc
	next        *TaskNode
	waiters     []chan struct{}
	startedAt   time.Time

	logger          core.Logger
	history         *activityHistory
	metrics         NodeMetrics
	coordinatorName string
}

// NewTaskNode constructs a pending node. No work runs until Activate.
func NewTaskNode(runtime core.TaskRunner, label string, priority core.TaskPriority, factory NodeFactory) *TaskNode {
	return &TaskNode{
		Label:    label,
		id:       uuid.NewString(),
		runtime:  runtime,
		priority: priority,
		factory:  factory,
	}
}

// ID returns the node's stable, globally-unique identity.
func (n *TaskNode) ID() string {
	return n.id
}

// Activate spawns the factory on the ambient runtime, unless the node is
// already activated or invalidated, or already carries a live task handle.
// A racing or repeated call is a safe no-op.
func (n *TaskNode) Activate() {
	n.mu.Lock()
	if n.activated || n.invalidated || n.cancel != nil {
		n.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	n.activated = true
	n.cancel = cancel
	n.startedAt = time.Now()
	n.mu.Unlock()

	traits := core.TaskTraits{Priority: n.priority}
	n.runtime.PostTaskWithTraits(func(context.Context) {
		n.factory(ctx, n)
		n.markFinished()
	}, traits)
}

// markFinished sets finished (unless invalidation beat it to a terminal
// state) and wakes every current waiter exactly once.
func (n *TaskNode) markFinished() {
	n.mu.Lock()
	if n.finished || n.invalidated {
		n.mu.Unlock()
		return
	}
	n.finished = true
	waiters := n.waiters
	n.waiters = nil
	started := n.startedAt
	n.mu.Unlock()

	now := time.Now()
	duration := now.Sub(started)
	n.history.add(NodeActivity{
		NodeID: n.id, Label: n.Label,
		StartedAt: started, FinishedAt: now, Duration: duration,
	})
	if n.metrics != nil {
		n.metrics.ObserveNode(n.coordinatorName, duration, false)
	}
	wake(waiters)
}

// Invalidate requests cancellation of the node's in-flight operation (if
// any), marks it invalidated, and wakes every current waiter. Idempotent,
// and a no-op on a node that has already finished.
// A not-yet-activated node that is invalidated must never run: Activate
// becomes a permanent no-op for it.
func (n *TaskNode) Invalidate() {
	n.mu.Lock()
	if n.invalidated || n.finished {
		n.mu.Unlock()
		return
	}
	n.invalidated = true
	cancel := n.cancel
	waiters := n.waiters
	n.waiters = nil
	started := n.startedAt
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	now := time.Now()
	var duration time.Duration
	if !started.IsZero() {
		duration = now.Sub(started)
	}
	n.history.add(NodeActivity{
		NodeID: n.id, Label: n.Label,
		StartedAt: started, FinishedAt: now, Duration: duration,
		Invalidated: true,
	})
	if n.metrics != nil {
		n.metrics.ObserveNode(n.coordinatorName, duration, true)
	}
	if n.logger != nil {
		n.logger.Debug("node invalidated", core.F("node_id", n.id), core.F("label", n.Label))
	}
	wake(waiters)
}

func wake(waiters []chan struct{}) {
	for _, ch := range waiters {
		close(ch)
	}
}

// AddNext sets the node's next pointer. It may be called at most once per
// node; a second call is a programming error and the library fails loudly
// rather than silently overwriting the chain.
func (n *TaskNode) AddNext(other *TaskNode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.next != nil {
		failProgramming(n.logger, "TaskNode.AddNext called with next already set (node "+n.id+")")
	}
	n.next = other
}

// Next returns the node's successor, or nil if none has been linked yet.
func (n *TaskNode) Next() *TaskNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.next
}

// Endpoint returns the last node reachable by following Next from self.
func (n *TaskNode) Endpoint() *TaskNode {
	cur := n
	for {
		next := cur.Next()
		if next == nil {
			return cur
		}
		cur = next
	}
}

// ForEach applies f to every node in the chain beginning at self.
func (n *TaskNode) ForEach(f func(*TaskNode)) {
	for cur := n; cur != nil; cur = cur.Next() {
		f(cur)
	}
}

// IsFinished reports whether the node reached the Finished terminal state.
func (n *TaskNode) IsFinished() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.finished
}

// IsInvalidated reports whether the node reached the Invalidated terminal
// state.
func (n *TaskNode) IsInvalidated() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.invalidated
}

// Done reports whether the node has reached either terminal state.
func (n *TaskNode) Done() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.finished || n.invalidated
}

// Wait suspends the caller until the node is finished or invalidated. If
// either already holds at call time, Wait returns immediately. Wait may be
// called concurrently by multiple waiters; all are woken exactly once.
func (n *TaskNode) Wait(ctx context.Context) error {
	n.mu.Lock()
	if n.finished || n.invalidated {
		n.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	n.waiters = append(n.waiters, ch)
	n.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
