package taskcoord

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/taskcoord/taskcoord/core"
)

// StackSchedulerStats is a read-only snapshot of a StackScheduler's state.
type StackSchedulerStats struct {
	Waiting   int
	Executing int
}

// StackSchedulerOption configures a StackScheduler at construction time.
type StackSchedulerOption func(*StackScheduler)

// WithStackSchedulerLogger sets the structured logger used for
// programming-error detections.
func WithStackSchedulerLogger(logger core.Logger) StackSchedulerOption {
	return func(s *StackScheduler) { s.logger = logger }
}

// WithStackSchedulerHistoryCapacity overrides the bounded activity ring
// buffer's capacity.
func WithStackSchedulerHistoryCapacity(capacity int) StackSchedulerOption {
	return func(s *StackScheduler) { s.history = newActivityHistory(capacity) }
}

// WithStackSchedulerPollInterval overrides the polling interval used by
// WaitUntilAllItemProcessed. Defaults to 20ms.
func WithStackSchedulerPollInterval(interval time.Duration) StackSchedulerOption {
	return func(s *StackScheduler) { s.pollInterval = interval }
}

// WithStackSchedulerMetrics attaches a NodeMetrics sink (typically a
// prometheus.CoordinatorExporter) that observes every node's completion,
// labelled with name.
func WithStackSchedulerMetrics(name string, metrics NodeMetrics) StackSchedulerOption {
	return func(s *StackScheduler) {
		s.metrics = metrics
		s.name = name
	}
}

// StackScheduler is a LIFO scheduler with a configurable ceiling on
// concurrently executing nodes. Newest submissions are preferred: a freshly
// submitted task runs before older waiting tasks whenever capacity allows.
//
// The waiting deque is a container/list, pushed and popped at the front —
// the same push-front/pop-front shape used by a plain LIFO job stack — so
// that the front is always "most recently submitted, not yet started".
type StackScheduler struct {
	runtime       core.TaskRunner
	logger        core.Logger
	history       *activityHistory
	metrics       NodeMetrics
	name          string
	maxConcurrent int
	pollInterval  time.Duration

	mu        sync.Mutex
	waiting   *list.List
	executing map[string]*TaskNode
}

// NewStackScheduler creates a scheduler with the given concurrency ceiling,
// spawning activated nodes onto rt. maxConcurrent must be at least 1.
func NewStackScheduler(rt core.TaskRunner, maxConcurrent int, opts ...StackSchedulerOption) *StackScheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	s := &StackScheduler{
		runtime:       rt,
		logger:        core.NewNoOpLogger(),
		history:       newActivityHistory(defaultActivityCapacity),
		name:          "stack",
		maxConcurrent: maxConcurrent,
		pollInterval:  20 * time.Millisecond,
		waiting:       list.New(),
		executing:     make(map[string]*TaskNode),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StackScheduler) newNode(label string, priority core.TaskPriority, factory NodeFactory) *TaskNode {
	n := NewTaskNode(s.runtime, label, priority, factory)
	n.logger = s.logger
	n.history = s.history
	n.metrics = s.metrics
	n.coordinatorName = s.name
	return n
}

// SubmitStack prepends op to the waiting deque, then drains. Returns a
// handle that resolves with op's value, op's error, or Cancelled.
func SubmitStack[R any](s *StackScheduler, label string, priority core.TaskPriority, op func(ctx context.Context) (R, error)) *Handle[R] {
	bridge := NewContinuationBridge[R]()

	var node *TaskNode
	node = s.newNode(label, priority, func(ctx context.Context, self *TaskNode) {
		resolveBridge(bridge, ctx, op)
		s.onComplete(self)
	})

	s.mu.Lock()
	s.waiting.PushFront(node)
	s.mu.Unlock()

	s.drain()
	return bridge.Handle(node.Invalidate)
}

// drain activates waiting nodes, newest first, until currentExecuting
// reaches maxConcurrent or the waiting deque empties.
func (s *StackScheduler) drain() {
	for {
		s.mu.Lock()
		if len(s.executing) >= s.maxConcurrent || s.waiting.Len() == 0 {
			s.mu.Unlock()
			return
		}
		front := s.waiting.Front()
		s.waiting.Remove(front)
		node := front.Value.(*TaskNode)
		s.executing[node.ID()] = node
		s.mu.Unlock()

		node.Activate()
	}
}

// onComplete is the per-completion protocol: remove the node from
// executing, then drain again to pull in waiting work.
func (s *StackScheduler) onComplete(self *TaskNode) {
	s.mu.Lock()
	delete(s.executing, self.ID())
	drained := s.waiting.Len() == 0 && len(s.executing) == 0
	s.mu.Unlock()

	if drained {
		s.logger.Debug("stack drained")
	}
	s.drain()
}

// counts returns the current {waiting, executing} pair.
func (s *StackScheduler) counts() (waiting, executing int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting.Len(), len(s.executing)
}

// CancelAll invalidates every waiting and executing node and empties the
// waiting deque. Executing nodes receive a cancellation request through
// their context; they finish cooperatively rather than being torn down.
func (s *StackScheduler) CancelAll() {
	s.mu.Lock()
	waiting := s.waiting
	s.waiting = list.New()
	executing := make([]*TaskNode, 0, len(s.executing))
	for _, n := range s.executing {
		executing = append(executing, n)
	}
	s.mu.Unlock()

	for e := waiting.Front(); e != nil; e = e.Next() {
		e.Value.(*TaskNode).Invalidate()
	}
	for _, n := range executing {
		n.Invalidate()
	}
}

// WaitUntilAllItemProcessed observes the published {waiting, executing}
// counter pair on a poll interval and returns once both reach zero. This
// mirrors the ticker-poll idiom used elsewhere in the ambient runtime for
// "wait until quiescent" operations.
func (s *StackScheduler) WaitUntilAllItemProcessed(ctx context.Context) error {
	if w, e := s.counts(); w == 0 && e == 0 {
		return nil
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if w, e := s.counts(); w == 0 && e == 0 {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stats returns a point-in-time snapshot for observability.
func (s *StackScheduler) Stats() StackSchedulerStats {
	w, e := s.counts()
	return StackSchedulerStats{Waiting: w, Executing: e}
}

// RecentActivity returns up to limit recently-completed node records,
// newest first.
func (s *StackScheduler) RecentActivity(limit int) []NodeActivity {
	return s.history.recent(limit)
}
