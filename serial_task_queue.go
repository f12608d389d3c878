package taskcoord

import (
	"context"
	"sync"

	"github.com/taskcoord/taskcoord/core"
)

// SerialQueueStats is a read-only snapshot of a SerialTaskQueue's state.
type SerialQueueStats struct {
	HasWork bool
}

// SerialQueueOption configures a SerialTaskQueue at construction time.
type SerialQueueOption func(*SerialTaskQueue)

// WithSerialQueueLogger sets the structured logger used for
// programming-error detections.
func WithSerialQueueLogger(logger core.Logger) SerialQueueOption {
	return func(q *SerialTaskQueue) { q.logger = logger }
}

// WithSerialQueueHistoryCapacity overrides the bounded activity ring
// buffer's capacity.
func WithSerialQueueHistoryCapacity(capacity int) SerialQueueOption {
	return func(q *SerialTaskQueue) { q.history = newActivityHistory(capacity) }
}

// WithSerialQueueMetrics attaches a NodeMetrics sink (typically a
// prometheus.CoordinatorExporter) that observes every node's completion,
// labelled with name.
func WithSerialQueueMetrics(name string, metrics NodeMetrics) SerialQueueOption {
	return func(q *SerialTaskQueue) {
		q.metrics = metrics
		q.name = name
	}
}

// SerialTaskQueue is a single logical FIFO stream: the simple case of a
// KeyedTaskManager with exactly one key, for call sites that need no
// keying.
type SerialTaskQueue struct {
	runtime core.TaskRunner
	logger  core.Logger
	history *activityHistory
	metrics NodeMetrics
	name    string

	mu   sync.Mutex
	head *TaskNode
}

// NewSerialTaskQueue creates a queue that spawns activated nodes onto rt.
func NewSerialTaskQueue(rt core.TaskRunner, opts ...SerialQueueOption) *SerialTaskQueue {
	q := &SerialTaskQueue{
		runtime: rt,
		logger:  core.NewNoOpLogger(),
		history: newActivityHistory(defaultActivityCapacity),
		name:    "serial",
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *SerialTaskQueue) newNode(label string, priority core.TaskPriority, factory NodeFactory) *TaskNode {
	n := NewTaskNode(q.runtime, label, priority, factory)
	n.logger = q.logger
	n.history = q.history
	n.metrics = q.metrics
	n.coordinatorName = q.name
	return n
}

// SubmitSerial appends op at the queue's endpoint; if the queue was empty,
// op becomes head and activates immediately. Returns a handle that
// resolves with op's value, op's error, or Cancelled.
func SubmitSerial[R any](q *SerialTaskQueue, label string, priority core.TaskPriority, op func(ctx context.Context) (R, error)) *Handle[R] {
	bridge := NewContinuationBridge[R]()

	node := q.newNode(label, priority, func(ctx context.Context, self *TaskNode) {
		resolveBridge(bridge, ctx, op)
		q.advance(self)
	})

	q.mu.Lock()
	if q.head == nil {
		q.head = node
		node.Activate()
	} else {
		q.head.Endpoint().AddNext(node)
	}
	q.mu.Unlock()

	return bridge.Handle(node.Invalidate)
}

// advance is the per-completion protocol: promote next to head and
// activate it, or clear head if the completed node was the tail.
func (q *SerialTaskQueue) advance(self *TaskNode) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head != self {
		// A CancelAll raced this completion and already cleared head.
		return
	}
	if next := self.Next(); next != nil {
		q.head = next
		q.logger.Debug("chain promoted", core.F("node_id", next.ID()))
		next.Activate()
		return
	}
	q.head = nil
}

// HasWork reports whether the queue currently has a head node.
func (q *SerialTaskQueue) HasWork() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.head != nil
}

// CancelAll invalidates every node reachable from head and clears head.
func (q *SerialTaskQueue) CancelAll() {
	q.mu.Lock()
	head := q.head
	q.head = nil
	q.mu.Unlock()

	if head != nil {
		head.ForEach((*TaskNode).Invalidate)
	}
}

// WaitUntilCurrentDrained awaits completion of the present endpoint — the
// last node already linked into the chain at call time — but not of tasks
// appended after this call returns its snapshot.
func (q *SerialTaskQueue) WaitUntilCurrentDrained(ctx context.Context) error {
	q.mu.Lock()
	head := q.head
	q.mu.Unlock()

	if head == nil {
		return nil
	}
	return head.Endpoint().Wait(ctx)
}

// WaitUntilAllDrained awaits quiescence: it observes head transitions and
// successively awaits each head until head becomes nil, including tasks
// added while draining.
func (q *SerialTaskQueue) WaitUntilAllDrained(ctx context.Context) error {
	for {
		q.mu.Lock()
		head := q.head
		q.mu.Unlock()

		if head == nil {
			return nil
		}
		if err := head.Wait(ctx); err != nil {
			return err
		}
	}
}

// Stats returns a point-in-time snapshot for observability.
func (q *SerialTaskQueue) Stats() SerialQueueStats {
	return SerialQueueStats{HasWork: q.HasWork()}
}

// RecentActivity returns up to limit recently-completed node records,
// newest first.
func (q *SerialTaskQueue) RecentActivity(limit int) []NodeActivity {
	return q.history.recent(limit)
}
