package psql

import "github.com/prometheus/client_golang/prometheus"

var checkpointSetCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puma",
	Subsystem: "checkpoints_table",
	Name:      "set_total",
	Help:      "Total number of set checkpoint queries performed per table",
}, []string{"table"})

func makeSetCounter(table string) func() {
	return checkpointSetCounter.WithLabelValues(table).Inc
}

func init() {
	prometheus.MustRegister(checkpointSetCounter)
}
