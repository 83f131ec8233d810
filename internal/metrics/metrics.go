// Package metrics exports executor runs as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aristath/taskflow/internal/plugin"
	"github.com/aristath/taskflow/internal/scheduler"
)

const namespace = "taskflow"

// DurationBuckets are the latency buckets for task and run durations.
var DurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeAborted = "aborted"
)

// Collector implements scheduler.Observer and owns its own registry so
// several collectors can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	tasks          *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	taskConfidence *prometheus.GaugeVec
	plannedTasks   prometheus.Gauge

	mu      sync.Mutex
	started map[string]time.Time
}

var _ scheduler.Observer = (*Collector)(nil)

// NewCollector creates a collector with all metrics registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Workflow invocations by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of workflow invocations.",
			Buckets:   DurationBuckets,
		}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_outputs_total",
			Help:      "Merged task outputs by task and outcome.",
		}, []string{"task", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Process time per task.",
			Buckets:   DurationBuckets,
		}, []string{"task"}),
		taskConfidence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_confidence",
			Help:      "Confidence of the last merged output per task.",
		}, []string{"task"}),
		plannedTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "planned_tasks",
			Help:      "Tasks in the plan of the most recent invocation.",
		}),
		started: make(map[string]time.Time),
	}
	c.registry.MustRegister(c.runs, c.runDuration, c.tasks, c.taskDuration, c.taskConfidence, c.plannedTasks)
	return c
}

// Registry exposes the underlying registry for gathering or tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the current metrics to path for a node_exporter
// textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

func (c *Collector) RunStarted(sessionID string, plan scheduler.ExecutionPlan) {
	c.mu.Lock()
	c.started[sessionID] = time.Now()
	c.mu.Unlock()
	c.plannedTasks.Set(float64(len(plan.SequentialOrder)))
}

func (c *Collector) TaskFinished(_ string, desc plugin.Descriptor, out plugin.TaskOutput) {
	outcome := OutcomeSuccess
	if out.Failed() {
		outcome = OutcomeFailure
	}
	c.tasks.WithLabelValues(desc.Name, outcome).Inc()
	c.taskDuration.WithLabelValues(desc.Name).Observe(out.ExecutionTime.Seconds())
	c.taskConfidence.WithLabelValues(desc.Name).Set(out.Confidence)
}

func (c *Collector) RunFinished(sessionID string, _ map[string]plugin.TaskOutput, err error) {
	c.mu.Lock()
	started, ok := c.started[sessionID]
	delete(c.started, sessionID)
	c.mu.Unlock()

	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeAborted
	}
	c.runs.WithLabelValues(outcome).Inc()
	if ok {
		c.runDuration.Observe(time.Since(started).Seconds())
	}
}
