// Package grpctest provides an in-process relay server for testing puma
// clients.
package grpctest

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/luno/puma"
	"github.com/luno/puma/internal/tracing"
	"github.com/luno/puma/pumapb"
)

// NewServer starts and returns a relay server over the binlog and its
// address. The server is stopped when the test ends.
func NewServer(t testing.TB, binlog *Binlog) (*Server, string) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(fmt.Sprintf("net.Listen error: %v", err))
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(tracing.UnaryServerInterceptor()))

	srv := &Server{
		binlog:       binlog,
		grpcServer:   grpcServer,
		fetchCounter: prometheus.NewCounter(prometheus.CounterOpts{Name: "fetch_total"}),
		ackCounter:   prometheus.NewCounter(prometheus.CounterOpts{Name: "ack_total"}),
	}

	pumapb.RegisterRelayServer(grpcServer, srv)

	go func() {
		err := grpcServer.Serve(l)
		if err != nil {
			log.Error(nil, errors.Wrap(err, "grpcServer.Serve error"))
		}
	}()

	t.Cleanup(srv.Stop)

	return srv, l.Addr().String()
}

var _ pumapb.RelayServer = (*Server)(nil)

type Server struct {
	binlog       *Binlog
	grpcServer   *grpc.Server
	fetchCounter prometheus.Counter
	ackCounter   prometheus.Counter

	mu       sync.Mutex
	failNext int
	stopOnce sync.Once
}

// FailNext makes the next n calls fail with codes.Unavailable.
func (srv *Server) FailNext(n int) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.failNext = n
}

func (srv *Server) injectFailure() error {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.failNext == 0 {
		return nil
	}
	srv.failNext--
	return status.Error(codes.Unavailable, "injected failure")
}

func (srv *Server) Fetch(_ context.Context, req *pumapb.FetchRequest) (*pumapb.FetchResponse, error) {
	srv.fetchCounter.Inc()
	if err := srv.injectFailure(); err != nil {
		return nil, err
	}

	sub := puma.SubscriptionFromProto(req.Subscription)
	if sub.ClientName == "" {
		return nil, status.Error(codes.InvalidArgument, "client name required")
	}

	msg := srv.binlog.fetch(sub, int(req.BatchSize), time.Duration(req.TimeoutMs)*time.Millisecond)
	return puma.MessageToProto(msg), nil
}

func (srv *Server) Ack(_ context.Context, req *pumapb.AckRequest) (*pumapb.AckResponse, error) {
	srv.ackCounter.Inc()
	if err := srv.injectFailure(); err != nil {
		return nil, err
	}

	sub := puma.SubscriptionFromProto(req.Subscription)
	if !srv.binlog.ack(sub.ClientName, puma.InfoFromProto(req.BinlogInfo)) {
		return nil, status.Error(codes.NotFound, "unknown binlog position")
	}
	return new(pumapb.AckResponse), nil
}

func (srv *Server) Rollback(_ context.Context, req *pumapb.RollbackRequest) (*pumapb.RollbackResponse, error) {
	if err := srv.injectFailure(); err != nil {
		return nil, err
	}

	sub := puma.SubscriptionFromProto(req.Subscription)
	if !srv.binlog.rollback(sub.ClientName, puma.InfoFromProto(req.BinlogInfo)) {
		return nil, status.Error(codes.NotFound, "unknown binlog position")
	}
	return new(pumapb.RollbackResponse), nil
}

// FetchCount returns the number of fetch calls received, including failed
// ones.
func (srv *Server) FetchCount() float64 {
	return testutil.ToFloat64(srv.fetchCounter)
}

// AckCount returns the number of ack calls received, including failed ones.
func (srv *Server) AckCount() float64 {
	return testutil.ToFloat64(srv.ackCounter)
}

// Stop stops the server. Calls in flight are aborted.
func (srv *Server) Stop() {
	srv.stopOnce.Do(srv.grpcServer.Stop)
}
