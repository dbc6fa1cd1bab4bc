package pblob

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	readCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "puma",
		Subsystem: "pblob",
		Name:      "read_total",
		Help:      "Number of checkpoints read per bucket",
	}, []string{"bucket"})

	writeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "puma",
		Subsystem: "pblob",
		Name:      "write_total",
		Help:      "Number of checkpoints written per bucket",
	}, []string{"bucket"})
)

func init() {
	prometheus.MustRegister(readCounter)
	prometheus.MustRegister(writeCounter)
}
