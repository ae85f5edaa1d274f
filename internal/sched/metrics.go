package sched

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_sched_tasks_submitted_total",
		Help: "Total number of tasks accepted by Submit",
	})

	tasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_sched_tasks_completed_total",
		Help: "Total number of tasks that finished executing",
	})

	tasksStolen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_sched_tasks_stolen_total",
		Help: "Total number of tasks taken from another worker's queue",
	})

	overflowPushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_sched_overflow_pushes_total",
		Help: "Total number of tasks diverted to the shared overflow queue",
	})

	workersParked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bodkin_sched_workers_parked",
		Help: "Number of workers currently parked waiting for work",
	})

	taskPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_sched_task_panics_total",
		Help: "Total number of tasks that panicked during execution",
	})
)
