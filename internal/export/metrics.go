package export

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsExported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_export_records_total",
		Help: "Total number of Arrow records shipped to the store",
	})

	tensorsExported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bodkin_export_tensors_total",
		Help: "Total number of tensors shipped to the store",
	})
)
