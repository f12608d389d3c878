package prometheus

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// CoordinatorExporterOptions controls collector configuration for
// CoordinatorExporter.
type CoordinatorExporterOptions struct {
	DurationBuckets []float64
}

// CoordinatorExporter exposes KeyedTaskManager/SerialTaskQueue/
// StackScheduler activity as Prometheus collectors. It is adapted from
// MetricsExporter's histogram/counter/gauge shape, applied to node
// completion events instead of runner task execution.
type CoordinatorExporter struct {
	nodeDurationSeconds  *prom.HistogramVec
	nodeInvalidatedTotal *prom.CounterVec
	nodeFinishedTotal    *prom.CounterVec
	stackWaiting         *prom.GaugeVec
	stackExecuting       *prom.GaugeVec
	keyedKeys            *prom.GaugeVec
	keyedRunning         *prom.GaugeVec
	serialHasWork        *prom.GaugeVec
}

// NewCoordinatorExporter creates and registers Prometheus collectors for
// coordinator-level observability.
func NewCoordinatorExporter(namespace string, reg prom.Registerer, opts CoordinatorExporterOptions) (*CoordinatorExporter, error) {
	if namespace == "" {
		namespace = "taskcoord"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	nodeDuration := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "node_duration_seconds",
		Help:      "TaskNode execution duration in seconds, from activation to finish.",
		Buckets:   buckets,
	}, []string{"coordinator"})
	nodeInvalidated := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "node_invalidated_total",
		Help:      "Total number of TaskNodes invalidated.",
	}, []string{"coordinator"})
	nodeFinished := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "node_finished_total",
		Help:      "Total number of TaskNodes that finished normally.",
	}, []string{"coordinator"})
	stackWaiting := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "stack_scheduler_waiting",
		Help:      "Number of nodes currently waiting in a StackScheduler's deque.",
	}, []string{"scheduler"})
	stackExecuting := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "stack_scheduler_executing",
		Help:      "Number of nodes currently executing under a StackScheduler.",
	}, []string{"scheduler"})
	keyedKeys := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "keyed_manager_keys",
		Help:      "Number of keys currently tracked by a KeyedTaskManager.",
	}, []string{"manager"})
	keyedRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "keyed_manager_running",
		Help:      "KeyedTaskManager running gate state (1=running, 0=paused).",
	}, []string{"manager"})
	serialHasWork := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "serial_queue_has_work",
		Help:      "SerialTaskQueue has-work state (1=has head, 0=idle).",
	}, []string{"queue"})

	var err error
	if nodeDuration, err = registerCollector(reg, nodeDuration); err != nil {
		return nil, err
	}
	if nodeInvalidated, err = registerCollector(reg, nodeInvalidated); err != nil {
		return nil, err
	}
	if nodeFinished, err = registerCollector(reg, nodeFinished); err != nil {
		return nil, err
	}
	if stackWaiting, err = registerCollector(reg, stackWaiting); err != nil {
		return nil, err
	}
	if stackExecuting, err = registerCollector(reg, stackExecuting); err != nil {
		return nil, err
	}
	if keyedKeys, err = registerCollector(reg, keyedKeys); err != nil {
		return nil, err
	}
	if keyedRunning, err = registerCollector(reg, keyedRunning); err != nil {
		return nil, err
	}
	if serialHasWork, err = registerCollector(reg, serialHasWork); err != nil {
		return nil, err
	}

	return &CoordinatorExporter{
		nodeDurationSeconds:  nodeDuration,
		nodeInvalidatedTotal: nodeInvalidated,
		nodeFinishedTotal:    nodeFinished,
		stackWaiting:         stackWaiting,
		stackExecuting:       stackExecuting,
		keyedKeys:            keyedKeys,
		keyedRunning:         keyedRunning,
		serialHasWork:        serialHasWork,
	}, nil
}

// ObserveNode records a single node's outcome against coordinatorName.
// Call this from a coordinator's loopback/advance/onComplete step, or
// periodically from RecentActivity.
func (e *CoordinatorExporter) ObserveNode(coordinatorName string, duration time.Duration, invalidated bool) {
	if e == nil {
		return
	}
	label := normalizeLabel(coordinatorName, "unknown")
	e.nodeDurationSeconds.WithLabelValues(label).Observe(duration.Seconds())
	if invalidated {
		e.nodeInvalidatedTotal.WithLabelValues(label).Inc()
	} else {
		e.nodeFinishedTotal.WithLabelValues(label).Inc()
	}
}

// SetStackSchedulerStats publishes a StackScheduler's {waiting, executing}
// snapshot under schedulerName.
func (e *CoordinatorExporter) SetStackSchedulerStats(schedulerName string, waiting, executing int) {
	if e == nil {
		return
	}
	label := normalizeLabel(schedulerName, "unknown")
	e.stackWaiting.WithLabelValues(label).Set(float64(waiting))
	e.stackExecuting.WithLabelValues(label).Set(float64(executing))
}

// SetKeyedManagerStats publishes a KeyedTaskManager's {keys, running}
// snapshot under managerName.
func (e *CoordinatorExporter) SetKeyedManagerStats(managerName string, keys int, running bool) {
	if e == nil {
		return
	}
	label := normalizeLabel(managerName, "unknown")
	e.keyedKeys.WithLabelValues(label).Set(float64(keys))
	if running {
		e.keyedRunning.WithLabelValues(label).Set(1)
	} else {
		e.keyedRunning.WithLabelValues(label).Set(0)
	}
}

// SetSerialQueueStats publishes a SerialTaskQueue's has-work snapshot under
// queueName.
func (e *CoordinatorExporter) SetSerialQueueStats(queueName string, hasWork bool) {
	if e == nil {
		return
	}
	label := normalizeLabel(queueName, "unknown")
	if hasWork {
		e.serialHasWork.WithLabelValues(label).Set(1)
	} else {
		e.serialHasWork.WithLabelValues(label).Set(0)
	}
}
