package grpctest

import (
	"fmt"
	"testing"

	"github.com/luno/puma"
)

// NewEndpoint returns a gRPC endpoint to the relay at url which is closed
// when the test ends.
func NewEndpoint(t testing.TB, url string, cfg puma.StreamConfig) *puma.GRPCEndpoint {
	ep, err := puma.NewGRPCEndpoint(cfg, url)
	if err != nil {
		panic(fmt.Errorf("new endpoint error: %s", err.Error()))
	}

	t.Cleanup(func() { _ = ep.Close() })

	return ep
}
