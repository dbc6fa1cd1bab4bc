package puma

import (
	"context"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luno/puma/internal/metrics"
)

const (
	opFetch    = "fetch"
	opAck      = "ack"
	opRollback = "rollback"
)

// ClusterClient fetches binlog events from a cluster of relay servers on
// behalf of one named client. A distributed lock keyed by the client name
// ensures that only one ClusterClient per name talks to the relays at a
// time. Failed calls are retried with a fixed pause, each retry against a
// freshly routed endpoint.
//
// A ClusterClient is not safe for concurrent use. Callers must Close it to
// release the lock.
type ClusterClient struct {
	cfg  StreamConfig
	lock Lock

	retryLimit         int
	retryInterval      time.Duration
	lockPollTimeout    time.Duration
	lockNoticeInterval time.Duration
	newEndpointFn      EndpointFactory

	endpoint Endpoint

	closed    atomic.Bool
	closeOnce sync.Once
	cleanup   runtime.Cleanup

	lockNotices prometheus.Counter
	lockWait    prometheus.Observer
	noServer    prometheus.Counter
}

var _ Client = (*ClusterClient)(nil)

// NewClusterClient returns a client for the subscription in cfg. The lock
// must be scoped to cfg.ClientName. No lock is taken and no relay is dialed
// until the first operation.
func NewClusterClient(cfg StreamConfig, lock Lock, opts ...ClusterOption) (*ClusterClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, errors.New("lock required")
	}

	labels := metrics.ClientLabels(cfg.ClientName)

	c := &ClusterClient{
		cfg:                cfg.clone(),
		lock:               lock,
		retryLimit:         defaultRetryLimit,
		retryInterval:      defaultRetryInterval,
		lockPollTimeout:    defaultLockPollTimeout,
		lockNoticeInterval: defaultLockNoticeInterval,
		newEndpointFn:      GRPCEndpointFactory(),
		lockNotices:        metrics.LockNotices.With(labels),
		lockWait:           metrics.LockWait.With(labels),
		noServer:           metrics.ClientNoServer.With(labels),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retryLimit < 0 {
		return nil, errors.New("negative retry limit", j.KV("limit", c.retryLimit))
	}

	// Release the lock if the client is dropped without Close. The
	// cleanup must not reference c or it would never run.
	c.cleanup = runtime.AddCleanup(c, releaseLock, lock)

	return c, nil
}

// Fetch returns the next batch of at most batchSize events. A zero timeout
// uses the relay's default wait.
func (c *ClusterClient) Fetch(ctx context.Context, batchSize int, timeout time.Duration) (*BinlogMessage, error) {
	var msg *BinlogMessage
	err := c.do(ctx, opFetch, func(ctx context.Context, ep Endpoint) error {
		m, err := ep.Fetch(ctx, batchSize, timeout)
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// FetchWithAck fetches the next batch and acks its last position. An
// empty batch is returned without an ack.
func (c *ClusterClient) FetchWithAck(ctx context.Context, batchSize int, timeout time.Duration) (*BinlogMessage, error) {
	msg, err := c.Fetch(ctx, batchSize, timeout)
	if err != nil {
		return nil, err
	}
	if msg.Empty() || msg.LastBinlogInfo.IsZero() {
		return msg, nil
	}
	if err := c.Ack(ctx, msg.LastBinlogInfo); err != nil {
		return nil, err
	}
	return msg, nil
}

// Ack commits info as consumed. Acking the same position again is allowed.
func (c *ClusterClient) Ack(ctx context.Context, info BinlogInfo) error {
	return c.do(ctx, opAck, func(ctx context.Context, ep Endpoint) error {
		return ep.Ack(ctx, info)
	})
}

// Rollback rewinds the relay to info so later events are fetched again.
// The zero position rewinds to the last ack.
func (c *ClusterClient) Rollback(ctx context.Context, info BinlogInfo) error {
	return c.do(ctx, opRollback, func(ctx context.Context, ep Endpoint) error {
		return ep.Rollback(ctx, info)
	})
}

// Close releases the lock and closes the bound endpoint. It is safe to call
// more than once.
func (c *ClusterClient) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cleanup.Stop()
		c.retire(context.Background(), c.endpoint)
		c.endpoint = nil
		releaseLock(c.lock)
	})
	return nil
}

// do runs fn against the bound endpoint, retrying failures against new
// endpoints. Once the lock is held the call is not cancellable.
func (c *ClusterClient) do(ctx context.Context, op string, fn func(context.Context, Endpoint) error) error {
	if c.closed.Load() {
		return ErrClosed
	}

	if err := c.ensureLock(ctx); err != nil {
		return err
	}

	ctx = log.ContextWith(context.WithoutCancel(ctx), j.MKS{
		"puma_client": c.cfg.ClientName,
		"puma_op":     op,
	})

	if c.needNewEndpoint(ctx) {
		if c.endpoint != nil {
			metrics.ClientFailovers.With(
				metrics.FailoverLabels(c.cfg.ClientName, metrics.ReasonMembership)).Inc()
			log.Info(ctx, "relay server left the cluster, switching",
				j.KS("server", c.endpoint.Addr()))
		}
		if err := c.rebind(ctx); err != nil {
			return err
		}
	}

	labels := metrics.OpLabels(c.cfg.ClientName, op)

	for attempt := 0; ; attempt++ {
		metrics.ClientAttempts.With(labels).Inc()

		err := fn(ctx, c.endpoint)
		if err == nil {
			return nil
		}
		metrics.ClientFailures.With(labels).Inc()

		if attempt == c.retryLimit {
			metrics.ClientExhausted.With(labels).Inc()
			return &RetriesExhaustedError{Op: op, Attempts: attempt + 1, Err: err}
		}

		log.Info(ctx, "relay call failed, retrying",
			j.MKV{"server": c.endpoint.Addr(), "attempt": attempt + 1},
			log.WithError(err))

		sleep(c.retryInterval)

		metrics.ClientFailovers.With(
			metrics.FailoverLabels(c.cfg.ClientName, metrics.ReasonFailure)).Inc()
		if err := c.rebind(ctx); err != nil {
			return err
		}
	}
}

// needNewEndpoint returns true if no endpoint is bound or the bound server
// is no longer a member of the cluster.
func (c *ClusterClient) needNewEndpoint(ctx context.Context) bool {
	return c.endpoint == nil || !c.cfg.Router.Exists(ctx, c.endpoint.Addr())
}

// rebind replaces the bound endpoint with one to the next routed server.
// The old endpoint is dropped even if no replacement is available.
func (c *ClusterClient) rebind(ctx context.Context) error {
	c.retire(ctx, c.endpoint)
	c.endpoint = nil

	ep, err := c.newEndpoint(ctx)
	if err != nil {
		return err
	}
	c.endpoint = ep
	return nil
}

// newEndpoint builds an endpoint to the next server the router offers.
func (c *ClusterClient) newEndpoint(ctx context.Context) (Endpoint, error) {
	addr, ok := c.cfg.Router.Next(ctx)
	if !ok {
		c.noServer.Inc()
		return nil, errors.Wrap(ErrNoServerAvailable, "",
			j.KS("client", c.cfg.ClientName))
	}

	ep, err := c.newEndpointFn(ctx, c.cfg, addr)
	if err != nil {
		return nil, errors.Wrap(err, "new endpoint", j.KS("server", addr))
	}
	return ep, nil
}

func (c *ClusterClient) retire(ctx context.Context, ep Endpoint) {
	cl, ok := ep.(io.Closer)
	if !ok {
		return
	}
	if err := cl.Close(); err != nil {
		log.Error(ctx, errors.Wrap(err, "close relay endpoint",
			j.KS("server", ep.Addr())))
	}
}

// ensureLock blocks until the client lock is held. Another holder is
// reported at most once per notice interval while waiting.
func (c *ClusterClient) ensureLock(ctx context.Context) error {
	var (
		t0         = now()
		lastNotice time.Time
		noticed    bool
	)

	for {
		if err := ctx.Err(); err != nil {
			return withKind(ErrCancelled, err)
		}

		ok, err := c.lock.TryAcquire(ctx, c.lockPollTimeout)
		if ctx.Err() != nil {
			return withKind(ErrCancelled, ctx.Err())
		} else if err != nil {
			return withKind(ErrLockFailed, err)
		} else if ok {
			if noticed {
				log.Info(ctx, "client lock acquired",
					j.MKV{"client": c.cfg.ClientName, "waited": now().Sub(t0).String()})
			}
			c.lockWait.Observe(now().Sub(t0).Seconds())
			return nil
		}

		if !noticed || now().Sub(lastNotice) >= c.lockNoticeInterval {
			noticed = true
			lastNotice = now()
			c.lockNotices.Inc()
			log.Info(ctx, "client lock held by another process, waiting",
				j.MKV{"client": c.cfg.ClientName, "waited": now().Sub(t0).String()})
		}
	}
}

func releaseLock(l Lock) {
	l.Release(context.Background())
}

// sleep is aliased for testing.
var sleep = time.Sleep

// now is aliased for testing.
var now = time.Now
