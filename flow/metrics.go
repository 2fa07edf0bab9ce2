package flow

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flowstate-go/flowstate/flow/emit"
)

// PrometheusMetrics collects engine metrics for scraping. All metrics are
// namespaced "flowstate" and labeled by workflow, activity, or task name,
// never by id, to keep cardinality bounded.
//
// Metrics exposed:
//
//   - workflows_total (counter): workflow lifecycle outcomes.
//     Labels: workflow, outcome (started, completed, failed, suspended).
//   - activities_total (counter): activity executions vs memo replays.
//     Labels: activity, outcome (run, hit).
//   - tasks_total (counter): task lifecycle outcomes on workers.
//     Labels: task, outcome (claimed, completed, retried, suspended, failed).
//   - task_latency_ms (histogram): handler execution duration.
//     Labels: task.
//   - tasks_requeued_total (counter): stale tasks recovered by the sweeper.
//
// Wire it through the event stream:
//
//	registry := prometheus.NewRegistry()
//	metrics := flow.NewPrometheusMetrics(registry)
//	env := flow.NewEnv(st).WithEmitter(metrics.Emitter())
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	workflows   *prometheus.CounterVec
	activities  *prometheus.CounterVec
	tasks       *prometheus.CounterVec
	taskLatency *prometheus.HistogramVec
	requeued    prometheus.Counter

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers the engine metrics with the
// registry. A nil registry selects the default global one.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		workflows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowstate",
			Name:      "workflows_total",
			Help:      "Workflow lifecycle outcomes",
		}, []string{"workflow", "outcome"}),
		activities: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowstate",
			Name:      "activities_total",
			Help:      "Activity bodies executed versus memoized replays",
		}, []string{"activity", "outcome"}),
		tasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowstate",
			Name:      "tasks_total",
			Help:      "Task lifecycle outcomes observed by workers",
		}, []string{"task", "outcome"}),
		taskLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowstate",
			Name:      "task_latency_ms",
			Help:      "Task handler execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"task"}),
		requeued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "flowstate",
			Name:      "tasks_requeued_total",
			Help:      "Stale RUNNING tasks returned to the schedule by the sweeper",
		}),
		enabled: true,
	}
}

// Emitter returns an emit.Emitter that feeds engine events into the
// metrics, so one emitter chain carries both observability streams.
// Compose it with others through emit.Multi.
func (pm *PrometheusMetrics) Emitter() emit.Emitter {
	return metricsEmitter{pm: pm}
}

// Disable stops metric recording. Useful in tests.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

func (pm *PrometheusMetrics) recording() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

type metricsEmitter struct {
	pm *PrometheusMetrics
}

func (m metricsEmitter) Emit(event emit.Event) {
	pm := m.pm
	if !pm.recording() {
		return
	}

	switch event.Msg {
	case "workflow_start":
		pm.workflows.WithLabelValues(event.Name, "started").Inc()
	case "workflow_complete":
		pm.workflows.WithLabelValues(event.Name, "completed").Inc()
	case "workflow_failed":
		pm.workflows.WithLabelValues(event.Name, "failed").Inc()
	case "workflow_suspended":
		pm.workflows.WithLabelValues(event.Name, "suspended").Inc()
	case "activity_run":
		pm.activities.WithLabelValues(event.Name, "run").Inc()
	case "activity_hit":
		pm.activities.WithLabelValues(event.Name, "hit").Inc()
	case "task_claimed":
		pm.tasks.WithLabelValues(event.Name, "claimed").Inc()
	case "task_completed":
		pm.tasks.WithLabelValues(event.Name, "completed").Inc()
		if ms, ok := durationMS(event.Meta["duration_ms"]); ok {
			pm.taskLatency.WithLabelValues(event.Name).Observe(ms)
		}
	case "task_retried":
		pm.tasks.WithLabelValues(event.Name, "retried").Inc()
	case "task_suspended":
		pm.tasks.WithLabelValues(event.Name, "suspended").Inc()
	case "task_failed":
		pm.tasks.WithLabelValues(event.Name, "failed").Inc()
	case "tasks_requeued":
		if n, ok := event.Meta["count"].(int); ok {
			pm.requeued.Add(float64(n))
		}
	}
}

func durationMS(v interface{}) (float64, bool) {
	switch d := v.(type) {
	case int64:
		return float64(d), true
	case int:
		return float64(d), true
	case float64:
		return d, true
	default:
		return 0, false
	}
}
