package grpctest

import (
	"slices"
	"sync"
	"time"

	"github.com/luno/puma"
)

// Binlog is an in-memory binlog with per client positions. Several Servers
// may share one Binlog to act as a relay cluster.
type Binlog struct {
	mu      sync.Mutex
	events  []puma.Event
	clients map[string]*position
	notify  chan struct{}
}

type position struct {
	acked int // index of the first unacked event
	read  int // index of the next event to fetch
}

func NewBinlog(events ...puma.Event) *Binlog {
	return &Binlog{
		events:  events,
		clients: make(map[string]*position),
		notify:  make(chan struct{}),
	}
}

// Append adds events to the end of the log and wakes waiting fetches.
func (b *Binlog) Append(events ...puma.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, events...)
	close(b.notify)
	b.notify = make(chan struct{})
}

// Acked returns the last acked position of the client.
func (b *Binlog) Acked(clientName string) puma.BinlogInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.position(clientName)
	if p.acked == 0 {
		return puma.BinlogInfo{}
	}
	return b.events[p.acked-1].Header().Info
}

// fetch returns up to n events matching the subscription, waiting up to
// timeout for the first one.
func (b *Binlog) fetch(sub puma.StreamConfig, n int, timeout time.Duration) *puma.BinlogMessage {
	deadline := time.Now().Add(timeout)
	for {
		b.mu.Lock()
		msg := b.next(sub, n)
		notify := b.notify
		b.mu.Unlock()

		wait := time.Until(deadline)
		if !msg.Empty() || wait <= 0 {
			return msg
		}

		t := time.NewTimer(wait)
		select {
		case <-notify:
			t.Stop()
		case <-t.C:
		}
	}
}

func (b *Binlog) next(sub puma.StreamConfig, n int) *puma.BinlogMessage {
	p := b.position(sub.ClientName)
	msg := new(puma.BinlogMessage)

	for p.read < len(b.events) && len(msg.Events) < n {
		e := b.events[p.read]
		p.read++
		if !matches(sub, e) {
			continue
		}
		msg.Events = append(msg.Events, e)
		msg.LastBinlogInfo = e.Header().Info
	}
	return msg
}

// ack commits the position. Acking an older or already acked position has
// no effect.
func (b *Binlog) ack(clientName string, info puma.BinlogInfo) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, ok := b.index(info)
	if !ok {
		return false
	}

	p := b.position(clientName)
	p.acked = max(p.acked, i+1)
	p.read = max(p.read, p.acked)
	return true
}

// rollback rewinds the read position to just after info. The zero
// position rewinds to the last ack.
func (b *Binlog) rollback(clientName string, info puma.BinlogInfo) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.position(clientName)
	if info.IsZero() {
		p.read = p.acked
		return true
	}

	i, ok := b.index(info)
	if !ok {
		return false
	}
	p.read = i + 1
	return true
}

func (b *Binlog) position(clientName string) *position {
	p, ok := b.clients[clientName]
	if !ok {
		p = new(position)
		b.clients[clientName] = p
	}
	return p
}

func (b *Binlog) index(info puma.BinlogInfo) (int, bool) {
	i := slices.IndexFunc(b.events, func(e puma.Event) bool {
		return e.Header().Info.Compare(info) == 0
	})
	return i, i >= 0
}

func matches(sub puma.StreamConfig, e puma.Event) bool {
	h := e.Header()
	if h.Database != "" && h.Database != sub.Database {
		return false
	}
	if h.Table != "" && len(sub.Tables) > 0 && !slices.Contains(sub.Tables, h.Table) {
		return false
	}

	switch e.(type) {
	case *puma.RowChangeEvent:
		return sub.DML
	case *puma.DDLEvent:
		return sub.DDL
	case *puma.TransactionEvent:
		return sub.Transaction
	}
	return true
}
