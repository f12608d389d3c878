package taskcoord

import (
	"context"
	"sync"

	"github.com/taskcoord/taskcoord/core"
)

// Mode selects a KeyedTaskManager submission's relationship to whatever is
// already running or waiting under the same key.
type Mode int

const (
	// DropCurrent invalidates every node currently linked under the key
	// (head and any queued successors) and installs the new node as head.
	DropCurrent Mode = iota
	// WaitInCurrent appends the new node at the chain's endpoint for the
	// key, running after everything already queued there.
	WaitInCurrent
)

// KeyedManagerStats is a read-only snapshot of a KeyedTaskManager's state,
// for the Prometheus snapshot poller and for tests.
type KeyedManagerStats struct {
	Keys    int
	Running bool
}

// KeyedManagerOption configures a KeyedTaskManager at construction time.
type KeyedManagerOption func(*KeyedTaskManager)

// WithKeyedManagerLogger sets the structured logger used for programming-
// error detections and structural debug events.
func WithKeyedManagerLogger(logger core.Logger) KeyedManagerOption {
	return func(m *KeyedTaskManager) { m.logger = logger }
}

// WithKeyedManagerRunning sets the initial value of the running gate.
// Defaults to true.
func WithKeyedManagerRunning(running bool) KeyedManagerOption {
	return func(m *KeyedTaskManager) { m.running = running }
}

// WithKeyedManagerHistoryCapacity overrides the bounded activity ring
// buffer's capacity.
func WithKeyedManagerHistoryCapacity(capacity int) KeyedManagerOption {
	return func(m *KeyedTaskManager) { m.history = newActivityHistory(capacity) }
}

// WithKeyedManagerMetrics attaches a NodeMetrics sink (typically a
// prometheus.CoordinatorExporter) that observes every node's completion,
// labelled with name.
func WithKeyedManagerMetrics(name string, metrics NodeMetrics) KeyedManagerOption {
	return func(m *KeyedTaskManager) {
		m.metrics = metrics
		m.name = name
	}
}

// KeyedTaskManager partitions submitted work by Key into independent
// chains. Each key's chain obeys DropCurrent or WaitInCurrent semantics,
// chosen per submission, and the whole manager can be paused and resumed
// via SetRunning.
type KeyedTaskManager struct {
	runtime core.TaskRunner
	logger  core.Logger
	history *activityHistory
	metrics NodeMetrics
	name    string

	mu      sync.Mutex
	chains  map[Key]*TaskNode
	running bool
}

// NewKeyedTaskManager creates a manager that spawns activated nodes onto rt.
func NewKeyedTaskManager(rt core.TaskRunner, opts ...KeyedManagerOption) *KeyedTaskManager {
	m := &KeyedTaskManager{
		runtime: rt,
		logger:  core.NewNoOpLogger(),
		history: newActivityHistory(defaultActivityCapacity),
		chains:  make(map[Key]*TaskNode),
		running: true,
		name:    "keyed",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *KeyedTaskManager) newNode(label string, priority core.TaskPriority, factory NodeFactory) *TaskNode {
	n := NewTaskNode(m.runtime, label, priority, factory)
	n.logger = m.logger
	n.history = m.history
	n.metrics = m.metrics
	n.coordinatorName = m.name
	return n
}

// SubmitKeyed submits op under key with the given mode and priority hint,
// returning a handle that resolves with op's value, op's error, or
// Cancelled.
func SubmitKeyed[R any](m *KeyedTaskManager, label string, key Key, mode Mode, priority core.TaskPriority, op func(ctx context.Context) (R, error)) *Handle[R] {
	bridge := NewContinuationBridge[R]()

	node := m.newNode(label, priority, func(ctx context.Context, self *TaskNode) {
		resolveBridge(bridge, ctx, op)
		m.loopback(key, self)
	})

	m.mu.Lock()
	switch mode {
	case DropCurrent:
		if head, ok := m.chains[key]; ok {
			head.ForEach((*TaskNode).Invalidate)
		}
		m.chains[key] = node
		if m.running {
			node.Activate()
		}
	case WaitInCurrent:
		if head, ok := m.chains[key]; ok {
			head.Endpoint().AddNext(node)
		} else {
			m.chains[key] = node
			if m.running {
				node.Activate()
			}
		}
	}
	m.mu.Unlock()

	return bridge.Handle(node.Invalidate)
}

// loopback is the completion-time protocol: a node's trailing step calls
// back into the manager with (key, self). This implementation adopts the
// tolerant behavior (see the Design Notes open question on loopback
// variants): a concurrent Cancel(key) may have already removed the head, in
// which case loopback is a no-op rather than an assertion failure.
func (m *KeyedTaskManager) loopback(key Key, self *TaskNode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	head, ok := m.chains[key]
	if !ok {
		return
	}
	if head != self {
		// The chain's head was replaced by a newer DropCurrent submission;
		// the new head carries its own lifecycle.
		return
	}
	if next := head.Next(); next != nil {
		m.chains[key] = next
		m.logger.Debug("chain promoted", core.F("key", key.String()), core.F("node_id", next.ID()))
		if m.running {
			next.Activate()
		}
		return
	}
	delete(m.chains, key)
}

// IsRunning reports the manager's process-wide running gate.
func (m *KeyedTaskManager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// SetRunning toggles the running gate. A false→true transition activates
// every key's current head (a node already activated or finished is a
// no-op per TaskNode's own guards).
func (m *KeyedTaskManager) SetRunning(flag bool) {
	m.mu.Lock()
	was := m.running
	m.running = flag
	var toActivate []*TaskNode
	if flag && !was {
		toActivate = make([]*TaskNode, 0, len(m.chains))
		for _, head := range m.chains {
			toActivate = append(toActivate, head)
		}
	}
	m.mu.Unlock()

	for _, n := range toActivate {
		n.Activate()
	}
}

// IsRunningFor reports whether key currently has a chain in the mapping.
func (m *KeyedTaskManager) IsRunningFor(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.chains[key]
	return ok
}

// Cancel invalidates every node in key's chain and removes key from the
// mapping. Cancelling a nonexistent key is a no-op.
func (m *KeyedTaskManager) Cancel(key Key) {
	m.mu.Lock()
	head, ok := m.chains[key]
	if ok {
		delete(m.chains, key)
	}
	m.mu.Unlock()

	if ok {
		head.ForEach((*TaskNode).Invalidate)
	}
}

// CancelAll invalidates every node in every chain and clears the mapping.
// Safe to call at any moment, including concurrently with in-flight
// submissions, and idempotent.
func (m *KeyedTaskManager) CancelAll() {
	m.mu.Lock()
	chains := m.chains
	m.chains = make(map[Key]*TaskNode)
	m.mu.Unlock()

	for _, head := range chains {
		head.ForEach((*TaskNode).Invalidate)
	}
}

// Stats returns a point-in-time snapshot for observability.
func (m *KeyedTaskManager) Stats() KeyedManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return KeyedManagerStats{Keys: len(m.chains), Running: m.running}
}

// RecentActivity returns up to limit recently-completed node records,
// newest first.
func (m *KeyedTaskManager) RecentActivity(limit int) []NodeActivity {
	return m.history.recent(limit)
}

// resolveBridge runs op and resumes bridge according to §7's propagation
// policy: Cancelled if the node's context was cancelled, the operation's
// error (wrapped) if it returned one, otherwise its value.
func resolveBridge[R any](bridge *ContinuationBridge[R], ctx context.Context, op func(context.Context) (R, error)) {
	value, err := op(ctx)
	if ctx.Err() != nil {
		bridge.Resume(value, Cancelled)
		return
	}
	if err != nil {
		bridge.Resume(value, &OperationError{Err: err})
		return
	}
	bridge.Resume(value, nil)
}
