// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WizardStepsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deployassist",
			Subsystem: "wizard",
			Name:      "steps_completed_total",
			Help:      "Total number of accepted wizard steps by integration type",
		},
		[]string{"integration_type"},
	)

	ProvisioningTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deployassist",
			Subsystem: "provisioning",
			Name:      "tasks_total",
			Help:      "Total number of provisioning tasks by type and final status",
		},
		[]string{"task_type", "status"},
	)

	ProvisioningTaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "deployassist",
			Subsystem: "provisioning",
			Name:      "task_duration_seconds",
			Help:      "Duration of provider calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"task_type"},
	)

	ProvisioningRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deployassist",
			Subsystem: "provisioning",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by integration type and outcome",
		},
		[]string{"integration_type", "status"},
	)

	InstructionsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deployassist",
			Subsystem: "instructions",
			Name:      "generated_total",
			Help:      "Total number of instruction sets generated by integration type",
		},
		[]string{"integration_type"},
	)
)

var registerOnce sync.Once

// Register adds every collector to reg. Repeated calls are no-ops.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			WizardStepsCompleted,
			ProvisioningTasks,
			ProvisioningTaskDuration,
			ProvisioningRuns,
			InstructionsGenerated,
		)
	})
}
