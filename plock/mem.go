package plock

import (
	"context"
	"sync"
	"time"

	"github.com/luno/puma"
)

// MemRegistry holds in-process locks by name. Locks from the same
// registry exclude each other.
type MemRegistry struct {
	mu       sync.Mutex
	holders  map[string]*Mem
	released map[string]chan struct{}
}

func NewMemRegistry() *MemRegistry {
	return &MemRegistry{
		holders:  make(map[string]*Mem),
		released: make(map[string]chan struct{}),
	}
}

// NewLock returns a new lock instance for the client name.
func (r *MemRegistry) NewLock(clientName string) *Mem {
	return &Mem{reg: r, name: clientName}
}

// Holder returns the lock instance holding the name, if any.
func (r *MemRegistry) Holder(clientName string) *Mem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.holders[clientName]
}

func (r *MemRegistry) tryLock(m *Mem) (<-chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h := r.holders[m.name]; h == nil || h == m {
		r.holders[m.name] = m
		return nil, true
	}

	ch, ok := r.released[m.name]
	if !ok {
		ch = make(chan struct{})
		r.released[m.name] = ch
	}
	return ch, false
}

func (r *MemRegistry) unlock(m *Mem) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.holders[m.name] != m {
		return
	}
	delete(r.holders, m.name)
	if ch, ok := r.released[m.name]; ok {
		close(ch)
		delete(r.released, m.name)
	}
}

// Mem is an in-process lock.
type Mem struct {
	reg  *MemRegistry
	name string
}

var _ puma.Lock = (*Mem)(nil)

func (m *Mem) TryAcquire(ctx context.Context, timeout time.Duration) (bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	for {
		released, ok := m.reg.tryLock(m)
		if ok {
			return true, nil
		}

		select {
		case <-released:
		case <-t.C:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func (m *Mem) Release(context.Context) {
	m.reg.unlock(m)
}
