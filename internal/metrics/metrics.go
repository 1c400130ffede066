// Package metrics holds the engine's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the engine's collectors. Create one per process and
// register it once.
type Metrics struct {
	TasksStarted     *prometheus.CounterVec
	TasksCompleted   *prometheus.CounterVec
	TasksFailed      *prometheus.CounterVec
	NodeExecutions   *prometheus.CounterVec
	NodeDuration     *prometheus.HistogramVec
	DeliveryAttempts prometheus.Counter
	DeliveryFailures prometheus.Counter
}

// New creates the collector set.
func New() *Metrics {
	return &Metrics{
		TasksStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aaa_tasks_started_total",
				Help: "Total number of workflow tasks started",
			},
			[]string{"workflow"},
		),
		TasksCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aaa_tasks_completed_total",
				Help: "Total number of workflow tasks completed successfully",
			},
			[]string{"workflow"},
		),
		TasksFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aaa_tasks_failed_total",
				Help: "Total number of workflow tasks ending in error",
			},
			[]string{"workflow"},
		),
		NodeExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aaa_node_executions_total",
				Help: "Total number of node executions",
			},
			[]string{"workflow", "type"},
		),
		NodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "aaa_node_duration_seconds",
				Help: "Duration of node executions",
			},
			[]string{"workflow", "type"},
		),
		DeliveryAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aaa_delivery_attempts_total",
				Help: "Total number of callback delivery attempts",
			},
		),
		DeliveryFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aaa_delivery_failures_total",
				Help: "Total number of callback deliveries that exhausted retries",
			},
		),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.TasksStarted,
		m.TasksCompleted,
		m.TasksFailed,
		m.NodeExecutions,
		m.NodeDuration,
		m.DeliveryAttempts,
		m.DeliveryFailures,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
