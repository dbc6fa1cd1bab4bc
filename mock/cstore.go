// Package mock contains mock puma implementations for testing.
package mock

import (
	"context"
	"sync"

	"github.com/luno/puma"
)

// CheckpointStore is an in-memory puma.CheckpointStore.
type CheckpointStore struct {
	mu      sync.Mutex
	flushed int
	points  map[string]puma.BinlogInfo
}

func (m *CheckpointStore) GetCheckpoint(_ context.Context, consumerName string) (puma.BinlogInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.points[consumerName], nil
}

func (m *CheckpointStore) SetCheckpoint(_ context.Context, consumerName string, info puma.BinlogInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.points == nil {
		m.points = make(map[string]puma.BinlogInfo)
	}
	m.points[consumerName] = info
	return nil
}

func (m *CheckpointStore) Flush(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushed++
	return nil
}

func (m *CheckpointStore) GetFlushCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushed
}

func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{points: make(map[string]puma.BinlogInfo)}
}

var _ puma.CheckpointStore = NewCheckpointStore()
