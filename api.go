package puma

import (
	"context"
	"time"

	"github.com/luno/fate"
	"github.com/luno/jettison/errors"
)

// StreamConfig is the subscription a cluster client fetches with. It is
// fixed for the lifetime of the client.
type StreamConfig struct {
	// ClientName identifies the client to relays and names its lock.
	// Two clients with the same name are the same logical consumer.
	ClientName string

	// Database and Tables select the events to receive. An empty Tables
	// selects every table in the database.
	Database string
	Tables   []string

	DML         bool
	DDL         bool
	Transaction bool

	// Router provides candidate relay server addresses.
	Router Router
}

func (c StreamConfig) validate() error {
	if c.ClientName == "" {
		return errors.New("client name required")
	}
	if c.Database == "" {
		return errors.New("database required")
	}
	if c.Router == nil {
		return errors.New("router required")
	}
	return nil
}

func (c StreamConfig) clone() StreamConfig {
	c.Tables = append([]string(nil), c.Tables...)
	return c
}

// Router provides relay server addresses for a client. Implementations
// must be safe for concurrent use.
type Router interface {
	// Next returns the next candidate address. ok is false when no
	// server is currently eligible.
	Next(ctx context.Context) (addr string, ok bool)

	// Exists returns true if addr is still an eligible member.
	Exists(ctx context.Context, addr string) bool
}

// Lock is a distributed mutual exclusion lock scoped to one client name.
//
// TryAcquire must be reentrant: when the lock is already held by this
// instance it returns true without waiting. It returns false if the lock
// could not be acquired within timeout. Release is best effort and logs
// its own failures.
type Lock interface {
	TryAcquire(ctx context.Context, timeout time.Duration) (bool, error)
	Release(ctx context.Context)
}

// Endpoint is a connection to a single relay server bound to a
// subscription. Failures are returned as *EndpointError.
type Endpoint interface {
	Addr() string
	Fetch(ctx context.Context, batchSize int, timeout time.Duration) (*BinlogMessage, error)
	Ack(ctx context.Context, info BinlogInfo) error

	// Rollback rewinds the stream to just after info. The zero position
	// rewinds to the last acked position.
	Rollback(ctx context.Context, info BinlogInfo) error
}

// EndpointFactory returns a new endpoint to addr for the subscription.
// If the returned endpoint implements io.Closer it is closed when replaced.
type EndpointFactory func(ctx context.Context, cfg StreamConfig, addr string) (Endpoint, error)

// Client is the fetch and checkpoint protocol of a relay stream.
type Client interface {
	Fetch(ctx context.Context, batchSize int, timeout time.Duration) (*BinlogMessage, error)
	FetchWithAck(ctx context.Context, batchSize int, timeout time.Duration) (*BinlogMessage, error)
	Ack(ctx context.Context, info BinlogInfo) error
	Rollback(ctx context.Context, info BinlogInfo) error
}

// CheckpointStore stores the last consumed position per consumer.
type CheckpointStore interface {
	// GetCheckpoint returns the consumer's position or the zero
	// position if none is stored.
	GetCheckpoint(ctx context.Context, consumerName string) (BinlogInfo, error)

	// SetCheckpoint stores the consumer's position. It may be
	// asynchronous.
	SetCheckpoint(ctx context.Context, consumerName string, info BinlogInfo) error

	// Flush writes any pending positions.
	Flush(ctx context.Context) error
}

// Consumer represents a piece of business logic that consumes binlog
// events. Consume should be idempotent since delivery is at-least-once.
type Consumer interface {
	Name() string
	Consume(context.Context, fate.Fate, Event) error
}

// ResetterCtx is an optional interface that a consumer can implement indicating
// that it is stateful and requires reset at the start of each Run.
type ResetterCtx interface {
	Reset(context.Context) error
}

// Spec specifies all the elements required to fetch and consume binlog
// events for a specific purpose. As long as the elements do not change the
// consumer is guaranteed at-least-once delivery.
type Spec struct {
	client    Client
	store     CheckpointStore
	consumer  Consumer
	batchSize int
	timeout   time.Duration
}

// Name returns the name of the spec which is the name of the consumer.
func (s Spec) Name() string {
	return s.consumer.Name()
}

const (
	defaultBatchSize    = 100
	defaultFetchTimeout = time.Second
)

// SpecOption configures a Spec.
type SpecOption func(*Spec)

// WithBatchSize sets the maximum number of events per fetch.
func WithBatchSize(n int) SpecOption {
	return func(s *Spec) {
		s.batchSize = n
	}
}

// WithFetchTimeout sets how long a relay waits for events per fetch.
func WithFetchTimeout(d time.Duration) SpecOption {
	return func(s *Spec) {
		s.timeout = d
	}
}

// NewSpec returns a new Spec. The store may be nil in which case the
// relay's own acked position is the only checkpoint.
func NewSpec(client Client, store CheckpointStore, consumer Consumer,
	opts ...SpecOption,
) Spec {
	s := Spec{
		client:    client,
		store:     store,
		consumer:  consumer,
		batchSize: defaultBatchSize,
		timeout:   defaultFetchTimeout,
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}
