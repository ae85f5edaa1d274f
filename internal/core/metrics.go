package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bodkin_core_ops_resolved_total",
		Help: "Total number of successful MakeOp resolutions per handler",
	}, []string{"handler"})

	opsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bodkin_core_ops_dispatched_total",
		Help: "Total number of op invocations scheduled per handler",
	}, []string{"handler"})

	dependencyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_core_dependency_failures_total",
		Help: "Total number of dispatches short-circuited by a failed input future",
	})

	transferBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bodkin_core_transfer_bytes_total",
		Help: "Total bytes moved between host and device memory",
	}, []string{"direction"})
)
