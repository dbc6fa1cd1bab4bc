package puma

import (
	"context"
	"testing"
	"time"

	"github.com/luno/fate"
	"github.com/luno/jettison/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luno/puma/internal/metrics"
)

func rowEvent(pos int64, executed time.Time) *RowChangeEvent {
	return &RowChangeEvent{
		EventHeader: EventHeader{
			Database:    "db",
			Table:       "t",
			Info:        BinlogInfo{ServerID: 1, BinlogFile: "mysql-bin.000001", BinlogPosition: pos},
			ExecuteTime: executed,
		},
		Action: RowActionInsert,
	}
}

func TestConsumerLag(t *testing.T) {
	c := NewConsumer("consumer_lag", func(context.Context, fate.Fate, Event) error {
		return nil
	}, WithConsumerLagAlert(time.Minute))

	labels := metrics.Labels("consumer_lag")

	err := c.Consume(context.Background(), fate.New(), rowEvent(4, time.Now().Add(-time.Hour)))
	require.NoError(t, err)
	assert.InDelta(t, time.Hour.Seconds(), testutil.ToFloat64(metrics.ConsumerLag.With(labels)), 5)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ConsumerLagAlert.With(labels)))

	err = c.Consume(context.Background(), fate.New(), rowEvent(8, time.Now()))
	require.NoError(t, err)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.ConsumerLag.With(labels)), 5)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ConsumerLagAlert.With(labels)))
}

func TestConsumerNoExecuteTime(t *testing.T) {
	c := NewConsumer("consumer_no_time", func(context.Context, fate.Fate, Event) error {
		return nil
	})
	labels := metrics.Labels("consumer_no_time")

	err := c.Consume(context.Background(), fate.New(), &UnparsedEvent{RawType: RawTypePreviousGTIDs})
	require.NoError(t, err)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ConsumerLag.With(labels)))
}

func TestConsumerErrors(t *testing.T) {
	consumeErr := errors.New("consume failed")
	c := NewConsumer("consumer_errors", func(context.Context, fate.Fate, Event) error {
		return consumeErr
	})

	err := c.Consume(context.Background(), fate.New(), rowEvent(4, time.Now()))
	require.ErrorIs(t, err, consumeErr)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ConsumerErrors.With(metrics.Labels("consumer_errors"))))
	assert.Equal(t, "consumer_errors", c.Name())
}

func TestConsumerFilter(t *testing.T) {
	var consumed []int64
	c := NewConsumer("consumer_filter", func(_ context.Context, _ fate.Fate, e Event) error {
		consumed = append(consumed, e.Header().Info.BinlogPosition)
		return nil
	}, WithEventFilter(func(e Event) (bool, error) {
		p := e.Header().Info.BinlogPosition
		if p == 13 {
			return false, errors.New("cannot decide")
		}
		return p%2 == 0, nil
	}))

	for _, p := range []int64{4, 5, 6} {
		require.NoError(t, c.Consume(context.Background(), fate.New(), rowEvent(p, time.Now())))
	}
	assert.Equal(t, []int64{4, 6}, consumed)

	err := c.Consume(context.Background(), fate.New(), rowEvent(13, time.Now()))
	require.Error(t, err)
	assert.True(t, IsFilterErr(err))
	assert.Equal(t, []int64{4, 6}, consumed)
}
