package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SchedulerTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockfree_scheduler_tasks_total",
			Help: "Tasks executed by the work-stealing scheduler, by where they were found",
		},
		[]string{"source"}, // local, global, stolen
	)

	SchedulerTaskPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lockfree_scheduler_task_panics_total",
			Help: "Tasks that panicked and were recovered by a worker",
		},
	)

	SchedulerTasksDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lockfree_scheduler_tasks_dropped_total",
			Help: "Queued tasks discarded by Stop before they ran",
		},
	)

	SchedulerWorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lockfree_scheduler_workers_active",
			Help: "Number of running scheduler workers",
		},
	)
)
