package prouter

import (
	"context"
	"slices"
	"sync"

	"github.com/luno/puma"
)

// Static is a router over a fixed set of addresses, handed out round robin.
// The set can be replaced with Set.
type Static struct {
	mu    sync.Mutex
	addrs []string
	next  int
}

var _ puma.Router = (*Static)(nil)

func NewStatic(addrs ...string) *Static {
	return &Static{addrs: slices.Clone(addrs)}
}

// Set replaces the members.
func (s *Static) Set(addrs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrs = slices.Clone(addrs)
	s.next = 0
}

func (s *Static) Next(context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.addrs) == 0 {
		return "", false
	}
	addr := s.addrs[s.next%len(s.addrs)]
	s.next++
	return addr, true
}

func (s *Static) Exists(_ context.Context, addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.addrs, addr)
}
