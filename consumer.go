package puma

import (
	"context"
	"time"

	"github.com/luno/fate"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luno/puma/internal/metrics"
)

const defaultLagAlert = 30 * time.Minute
const defaultActivityTTL = 24 * time.Hour

type consumer struct {
	fn          func(context.Context, fate.Fate, Event) error
	name        string
	lagAlert    time.Duration
	activityTTL time.Duration
	filter      EventFilter

	lagGauge      prometheus.Gauge
	lagAlertGauge prometheus.Gauge
	errorCounter  prometheus.Counter
	latencyHist   prometheus.Observer
	ageHist       prometheus.Observer
	activityKey   string
}

type ConsumerOption func(*consumer)

// WithConsumerLagAlert provides an option to set the consumer lag alert
// threshold. Setting it to -1 disables the alert.
func WithConsumerLagAlert(d time.Duration) ConsumerOption {
	return func(c *consumer) {
		c.lagAlert = d
	}
}

// WithEventFilter provides an option to only consume events the filter
// allows. Rejected events are skipped and a filter error fails the
// consume with an error matching IsFilterErr.
func WithEventFilter(flt EventFilter) ConsumerOption {
	return func(c *consumer) {
		c.filter = flt
	}
}

// WithConsumerActivityTTL provides an option to set the consumer activity
// metric ttl; ie. if no events is consumed in `tll` duration the consumer
// is considered inactive. Setting it to -1 disables the activity metric.
func WithConsumerActivityTTL(ttl time.Duration) ConsumerOption {
	return func(c *consumer) {
		c.activityTTL = ttl
	}
}

// NewConsumer returns a new instrumented consumer of binlog events. Lag is
// measured from each event's execute time.
func NewConsumer(name string, fn func(context.Context, fate.Fate, Event) error,
	opts ...ConsumerOption) Consumer {

	labels := metrics.Labels(name)

	c := &consumer{
		fn:            fn,
		name:          name,
		lagAlert:      defaultLagAlert,
		activityTTL:   defaultActivityTTL,
		lagGauge:      metrics.ConsumerLag.With(labels),
		lagAlertGauge: metrics.ConsumerLagAlert.With(labels),
		errorCounter:  metrics.ConsumerErrors.With(labels),
		latencyHist:   metrics.ConsumerLatency.With(labels),
		ageHist:       metrics.ConsumerAge.With(labels),
	}

	for _, o := range opts {
		o(c)
	}

	c.activityKey = metrics.ConsumerActivityGauge.Register(labels, c.activityTTL)

	return c
}

func (c *consumer) Name() string {
	return c.name
}

func (c *consumer) Consume(ctx context.Context, fate fate.Fate,
	event Event) error {
	t0 := time.Now()

	metrics.ConsumerActivityGauge.SetActive(c.activityKey)

	// Events without an execute time, like some unparsed ones, do not
	// move the lag.
	if et := event.Header().ExecuteTime; !et.IsZero() {
		lag := t0.Sub(et)
		c.lagGauge.Set(lag.Seconds())
		c.ageHist.Observe(lag.Seconds())

		alert := 0.0
		if lag > c.lagAlert && c.lagAlert > 0 {
			alert = 1
		}
		c.lagAlertGauge.Set(alert)
	}

	if c.filter != nil {
		ok, err := c.filter(event)
		if err != nil {
			c.errorCounter.Inc()
			return asFilterErr(err)
		} else if !ok {
			return nil
		}
	}

	err := c.fn(ctx, fate, event)
	if err != nil {
		c.errorCounter.Inc()
	}

	latency := time.Since(t0)
	c.latencyHist.Observe(latency.Seconds())

	return err
}
