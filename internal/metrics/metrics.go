// Package metrics holds the prometheus metrics of puma clients and consumers.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	consumerLabel = "consumer_name"
	clientLabel   = "client_name"
	opLabel       = "op"
	reasonLabel   = "reason"
)

// Labels returns the prometheus labels for the consumer
func Labels(name string) prometheus.Labels {
	return prometheus.Labels{consumerLabel: name}
}

// ClientLabels returns the prometheus labels for the cluster client.
func ClientLabels(name string) prometheus.Labels {
	return prometheus.Labels{clientLabel: name}
}

// OpLabels returns the prometheus labels for a cluster client operation.
func OpLabels(name, op string) prometheus.Labels {
	return prometheus.Labels{clientLabel: name, opLabel: op}
}

// FailoverLabels returns the prometheus labels for an endpoint replacement.
func FailoverLabels(name, reason string) prometheus.Labels {
	return prometheus.Labels{clientLabel: name, reasonLabel: reason}
}

// Endpoint replacement reasons.
const (
	ReasonMembership = "membership"
	ReasonFailure    = "failure"
)

var (
	// ClientAttempts counts relay calls made by cluster clients,
	// including retries.
	ClientAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "puma",
		Subsystem: "client",
		Name:      "attempts_total",
		Help:      "Number of relay calls attempted",
	}, []string{clientLabel, opLabel})

	// ClientFailures counts relay calls that failed.
	ClientFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "puma",
		Subsystem: "client",
		Name:      "failures_total",
		Help:      "Number of relay calls that returned an error",
	}, []string{clientLabel, opLabel})

	// ClientExhausted counts operations that failed every attempt.
	ClientExhausted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "puma",
		Subsystem: "client",
		Name:      "retries_exhausted_total",
		Help:      "Number of operations that failed after all retries",
	}, []string{clientLabel, opLabel})

	// ClientFailovers counts endpoint replacements by reason.
	ClientFailovers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "puma",
		Subsystem: "client",
		Name:      "failovers_total",
		Help:      "Number of times the relay endpoint was replaced",
	}, []string{clientLabel, reasonLabel})

	// ClientNoServer counts operations that found no eligible relay server.
	ClientNoServer = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "puma",
		Subsystem: "client",
		Name:      "no_server_total",
		Help:      "Number of times no relay server was available",
	}, []string{clientLabel})

	// LockWait is how long operations waited to hold the client lock.
	LockWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "puma",
		Subsystem: "lock",
		Name:      "wait_seconds",
		Help:      "Time spent waiting for the distributed client lock",
		Buckets:   []float64{0.001, 0.01, 0.1, 1.0, 5.0, 30.0, 60.0, 300.0, 900.0, 3600.0},
	}, []string{clientLabel})

	// LockNotices counts the throttled notices logged while waiting for
	// the client lock.
	LockNotices = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "puma",
		Subsystem: "lock",
		Name:      "wait_notices_total",
		Help:      "Number of lock wait notices logged",
	}, []string{clientLabel})

	// ConsumerLag is a metric for how far behind the consumer is
	// based on the last consumed event
	ConsumerLag = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "puma",
		Subsystem: "consumer",
		Name:      "lag_seconds",
		Help:      "Lag between now and the current event execute time in seconds",
	}, []string{consumerLabel})

	// ConsumerAge is a metric for how old events coming that are being
	// processed are.
	ConsumerAge = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "puma",
		Subsystem: "consumer",
		Name:      "event_age_seconds",
		Help:      "The age of events that are being processed by the consumer",
		Buckets: []float64{
			0.1, .25, .5, 1, 2.5, 5,
			10, 25, 50, 100, 250, 500, // ~10 minutes
			1_000, 2_500, 5_000, 10_000, 25_000, 50_000, // ~13 hours
			100_000, // > 1 day
		},
	}, []string{consumerLabel})

	// ConsumerLagAlert is whether or not the consumer is too far behind
	ConsumerLagAlert = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "puma",
		Subsystem: "consumer",
		Name:      "lag_alert",
		Help:      "Whether or not the consumer lag crosses its alert threshold",
	}, []string{consumerLabel})

	// ConsumerActivityGauge is whether or not the consumer has processed an event
	ConsumerActivityGauge = newActivityGauge(
		prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "puma",
			Subsystem: "consumer",
			Name:      "active",
			Help: "Whether or not the consumer was active (consumed an event) " +
				"in the activity ttl period",
		}, []string{consumerLabel}))

	// ConsumerLatency is how long the consumer is taking to process an event
	ConsumerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "puma",
		Subsystem: "consumer",
		Name:      "latency_seconds",
		Help:      "Event loop latency in seconds",
		Buckets:   []float64{0.001, 0.01, 0.1, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0},
	}, []string{consumerLabel})

	// ConsumerErrors is the number of errors from processing events
	ConsumerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "puma",
		Subsystem: "consumer",
		Name:      "error_count",
		Help:      "Number of errors processing events",
	}, []string{consumerLabel})
)

func init() {
	prometheus.MustRegister(
		ClientAttempts,
		ClientFailures,
		ClientExhausted,
		ClientFailovers,
		ClientNoServer,
		LockWait,
		LockNotices,
		ConsumerLag,
		ConsumerAge,
		ConsumerLagAlert,
		ConsumerActivityGauge,
		ConsumerLatency,
		ConsumerErrors,
	)
}

func newActivityGauge(g *prometheus.GaugeVec) *activityGauge {
	return &activityGauge{
		gv:     g,
		states: make(map[string]state),
	}
}

// activityGauge provides a prometheus GaugeVec which indicates whether or not
// a consumer was recently active (consumed an event).
type activityGauge struct {
	gv     *prometheus.GaugeVec
	mu     sync.Mutex
	states map[string]state
}

type state struct {
	labels prometheus.Labels
	tick   time.Time
	ttl    time.Duration
}

// Register registers the consumer labels with its ttl and ticks it as active and returns a consumer key.
func (g *activityGauge) Register(labels prometheus.Labels, ttl time.Duration) string {
	key := labelsToKey(labels)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.states[key] = state{
		labels: labels,
		ttl:    ttl,
		tick:   time.Now(),
	}
	return key
}

// SetActive ticks the consumer key as active.
func (g *activityGauge) SetActive(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.states[key]
	s.tick = time.Now()
	g.states[key] = s
}

func (g *activityGauge) Describe(ch chan<- *prometheus.Desc) {
	g.gv.Describe(ch)
}

// Collect sets and collects the internal GaugeVec activity values for all registered
// consumers labels.
func (g *activityGauge) Collect(ch chan<- prometheus.Metric) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, s := range g.states {
		if s.ttl < 0 {
			continue
		}
		v := 0.0
		if time.Since(s.tick) < s.ttl {
			v = 1
		}
		g.gv.With(s.labels).Set(v)
	}
	g.gv.Collect(ch)
}

func labelsToKey(labels prometheus.Labels) string {
	s := strings.Builder{}
	for k, v := range labels {
		s.WriteString(k)
		s.Write([]byte{255})
		s.WriteString(v)
		s.Write([]byte{255})
	}
	return s.String()
}
