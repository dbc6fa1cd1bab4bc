package puma

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/luno/puma/internal/tracing"
	"github.com/luno/puma/pumapb"
)

// defaultCallTimeout bounds a relay call on top of the requested fetch wait.
const defaultCallTimeout = 10 * time.Second

// GRPCEndpoint is an Endpoint to a single relay server over gRPC.
type GRPCEndpoint struct {
	addr        string
	sub         *pumapb.Subscription
	conn        *grpc.ClientConn
	cl          pumapb.RelayClient
	callTimeout time.Duration
}

var _ Endpoint = (*GRPCEndpoint)(nil)

type endpointOptions struct {
	dialOpts    []grpc.DialOption
	callTimeout time.Duration
}

// EndpointOption configures a GRPCEndpoint.
type EndpointOption func(*endpointOptions)

// WithDialOptions adds gRPC dial options. Transport credentials default
// to insecure.
func WithDialOptions(opts ...grpc.DialOption) EndpointOption {
	return func(o *endpointOptions) {
		o.dialOpts = append(o.dialOpts, opts...)
	}
}

// WithCallTimeout sets the deadline of each relay call. Fetch calls get the
// requested wait added on top.
func WithCallTimeout(d time.Duration) EndpointOption {
	return func(o *endpointOptions) {
		o.callTimeout = d
	}
}

// NewGRPCEndpoint returns an endpoint to the relay at addr. The connection
// is established lazily on the first call.
func NewGRPCEndpoint(cfg StreamConfig, addr string, opts ...EndpointOption) (*GRPCEndpoint, error) {
	o := endpointOptions{
		dialOpts: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithChainUnaryInterceptor(tracing.UnaryClientInterceptor()),
		},
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := grpc.NewClient(addr, o.dialOpts...)
	if err != nil {
		return nil, &EndpointError{Addr: addr, Op: "dial", Err: err}
	}

	return &GRPCEndpoint{
		addr:        addr,
		sub:         subscriptionToProto(cfg),
		conn:        conn,
		cl:          pumapb.NewRelayClient(conn),
		callTimeout: o.callTimeout,
	}, nil
}

// GRPCEndpointFactory returns an EndpointFactory of gRPC endpoints.
func GRPCEndpointFactory(opts ...EndpointOption) EndpointFactory {
	return func(_ context.Context, cfg StreamConfig, addr string) (Endpoint, error) {
		return NewGRPCEndpoint(cfg, addr, opts...)
	}
}

func (e *GRPCEndpoint) Addr() string {
	return e.addr
}

func (e *GRPCEndpoint) Fetch(ctx context.Context, batchSize int, timeout time.Duration) (*BinlogMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, e.callTimeout+timeout)
	defer cancel()

	res, err := e.cl.Fetch(ctx, &pumapb.FetchRequest{
		Subscription: e.sub,
		BatchSize:    int32(batchSize),
		TimeoutMs:    timeout.Milliseconds(),
	})
	if err != nil {
		return nil, &EndpointError{Addr: e.addr, Op: opFetch, Err: err}
	}

	return messageFromProto(res), nil
}

func (e *GRPCEndpoint) Ack(ctx context.Context, info BinlogInfo) error {
	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	_, err := e.cl.Ack(ctx, &pumapb.AckRequest{
		Subscription: e.sub,
		BinlogInfo:   infoToProto(info),
	})
	if err != nil {
		return &EndpointError{Addr: e.addr, Op: opAck, Err: err}
	}
	return nil
}

func (e *GRPCEndpoint) Rollback(ctx context.Context, info BinlogInfo) error {
	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	_, err := e.cl.Rollback(ctx, &pumapb.RollbackRequest{
		Subscription: e.sub,
		BinlogInfo:   infoToProto(info),
	})
	if err != nil {
		return &EndpointError{Addr: e.addr, Op: opRollback, Err: err}
	}
	return nil
}

// Close closes the underlying connection.
func (e *GRPCEndpoint) Close() error {
	return e.conn.Close()
}
