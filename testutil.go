package puma

import (
	"context"
	"time"
)

// NewMockClient returns a Client that returns the provided batches in order
// and then endErr from every further Fetch. Acks and rollbacks are recorded
// but do not change what is fetched. Purely meant for testing.
func NewMockClient(batches []*BinlogMessage, endErr error) *MockClient {
	return &MockClient{batches: batches, endErr: endErr}
}

// MockClient is a scripted Client.
type MockClient struct {
	batches []*BinlogMessage
	endErr  error

	Acks      []BinlogInfo
	Rollbacks []BinlogInfo
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) Fetch(context.Context, int, time.Duration) (*BinlogMessage, error) {
	if len(m.batches) == 0 {
		return nil, m.endErr
	}
	msg := m.batches[0]
	m.batches = m.batches[1:]
	return msg, nil
}

func (m *MockClient) FetchWithAck(ctx context.Context, n int, d time.Duration) (*BinlogMessage, error) {
	msg, err := m.Fetch(ctx, n, d)
	if err != nil {
		return nil, err
	}
	if !msg.Empty() && !msg.LastBinlogInfo.IsZero() {
		m.Acks = append(m.Acks, msg.LastBinlogInfo)
	}
	return msg, nil
}

func (m *MockClient) Ack(_ context.Context, info BinlogInfo) error {
	m.Acks = append(m.Acks, info)
	return nil
}

func (m *MockClient) Rollback(_ context.Context, info BinlogInfo) error {
	m.Rollbacks = append(m.Rollbacks, info)
	return nil
}
