package puma_test

import (
	"context"
	"testing"

	"github.com/luno/fate"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luno/puma"
	"github.com/luno/puma/mock"
)

func pos(p int64) puma.BinlogInfo {
	return puma.BinlogInfo{ServerID: 1, BinlogFile: "mysql-bin.000001", BinlogPosition: p}
}

func batch(positions ...int64) *puma.BinlogMessage {
	msg := new(puma.BinlogMessage)
	for _, p := range positions {
		msg.Events = append(msg.Events, &puma.RowChangeEvent{
			EventHeader: puma.EventHeader{Database: "db", Table: "t", Info: pos(p)},
			Action:      puma.RowActionInsert,
		})
		msg.LastBinlogInfo = pos(p)
	}
	return msg
}

type recorder struct {
	name   string
	failAt int64
	seen   []int64
	resets int
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Consume(_ context.Context, _ fate.Fate, e puma.Event) error {
	p := e.Header().Info.BinlogPosition
	if p == r.failAt {
		return errors.New("consume failed")
	}
	r.seen = append(r.seen, p)
	return nil
}

func (r *recorder) Reset(context.Context) error {
	r.resets++
	return nil
}

func TestRun(t *testing.T) {
	errDone := errors.New("no more batches")
	cl := puma.NewMockClient([]*puma.BinlogMessage{
		batch(4, 8),
		new(puma.BinlogMessage),
		batch(12),
	}, errDone)
	store := mock.NewCheckpointStore()
	r := &recorder{name: "run"}

	err := puma.Run(context.Background(), puma.NewSpec(cl, store, r))
	jtest.Require(t, errDone, err)

	assert.Equal(t, []int64{4, 8, 12}, r.seen)
	assert.Equal(t, []puma.BinlogInfo{pos(8), pos(12)}, cl.Acks)
	assert.Empty(t, cl.Rollbacks)
	assert.Equal(t, 1, r.resets)

	c, err := store.GetCheckpoint(context.Background(), "run")
	jtest.RequireNil(t, err)
	assert.Equal(t, pos(12), c)
	assert.Equal(t, 1, store.GetFlushCount())
}

func TestRunFromCheckpoint(t *testing.T) {
	errDone := errors.New("no more batches")
	cl := puma.NewMockClient(nil, errDone)
	store := mock.NewCheckpointStore()
	jtest.RequireNil(t, store.SetCheckpoint(context.Background(), "checkpoint", pos(40)))

	err := puma.Run(context.Background(), puma.NewSpec(cl, store, &recorder{name: "checkpoint"}))
	jtest.Require(t, errDone, err)
	assert.Equal(t, []puma.BinlogInfo{pos(40)}, cl.Rollbacks)
}

func TestRunConsumeError(t *testing.T) {
	cl := puma.NewMockClient([]*puma.BinlogMessage{
		batch(4, 8),
		batch(12, 16),
	}, nil)
	store := mock.NewCheckpointStore()
	r := &recorder{name: "consume_error", failAt: 16}

	err := puma.Run(context.Background(), puma.NewSpec(cl, store, r))
	require.Error(t, err)

	assert.Equal(t, []int64{4, 8, 12}, r.seen)
	assert.Equal(t, []puma.BinlogInfo{pos(8)}, cl.Acks)

	// The relay is rewound to the last ack so 12 and 16 come again.
	assert.Equal(t, []puma.BinlogInfo{pos(8)}, cl.Rollbacks)

	c, err := store.GetCheckpoint(context.Background(), "consume_error")
	jtest.RequireNil(t, err)
	assert.Equal(t, pos(8), c)
}

func TestRunConsumeErrorFirstBatch(t *testing.T) {
	cl := puma.NewMockClient([]*puma.BinlogMessage{batch(4, 8)}, nil)
	r := &recorder{name: "first_batch", failAt: 4}

	err := puma.Run(context.Background(), puma.NewSpec(cl, nil, r))
	require.Error(t, err)
	assert.Empty(t, cl.Acks)

	// Nothing acked yet, so the relay is rewound to its own last ack.
	assert.Equal(t, []puma.BinlogInfo{{}}, cl.Rollbacks)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cl := puma.NewMockClient([]*puma.BinlogMessage{batch(4)}, nil)
	err := puma.Run(ctx, puma.NewSpec(cl, nil, &recorder{name: "cancelled"}))
	jtest.Require(t, context.Canceled, err)
	assert.True(t, puma.IsExpected(err))
	assert.Empty(t, cl.Acks)
}

func TestMockClientFetchWithAck(t *testing.T) {
	cl := puma.NewMockClient([]*puma.BinlogMessage{new(puma.BinlogMessage), batch(4)}, nil)

	msg, err := cl.FetchWithAck(context.Background(), 10, 0)
	jtest.RequireNil(t, err)
	assert.True(t, msg.Empty())
	assert.Empty(t, cl.Acks)

	msg, err = cl.FetchWithAck(context.Background(), 10, 0)
	jtest.RequireNil(t, err)
	assert.Len(t, msg.Events, 1)
	assert.Equal(t, []puma.BinlogInfo{pos(4)}, cl.Acks)
}
