package ppatterns

import (
	"context"
	"testing"
	"time"

	"github.com/luno/fate"
	"github.com/luno/jettison/errors"
	"github.com/stretchr/testify/require"

	"github.com/luno/puma"
	"github.com/luno/puma/mock"
)

func TestRunOnceBackoff(t *testing.T) {
	tests := []struct {
		Name    string
		Err     error
		Backoff time.Duration
	}{
		{
			Name:    "cancelled",
			Err:     context.Canceled,
			Backoff: expectedBackoff,
		}, {
			Name:    "closed",
			Err:     puma.ErrClosed,
			Backoff: expectedBackoff,
		}, {
			Name:    "lock wait cancelled",
			Err:     puma.ErrCancelled,
			Backoff: expectedBackoff,
		}, {
			Name:    "retries exhausted",
			Err:     puma.ErrRetriesExhausted,
			Backoff: errorBackoff,
		}, {
			Name:    "other",
			Err:     errors.New("other"),
			Backoff: errorBackoff,
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			cl := puma.NewMockClient(nil, test.Err)
			c := puma.NewConsumer("run_once", func(context.Context, fate.Fate, puma.Event) error {
				return nil
			})
			s := puma.NewSpec(cl, mock.NewCheckpointStore(), c)

			require.Equal(t, test.Backoff, runOnce(context.Background(), s))
		})
	}
}

func TestRunForever(t *testing.T) {
	stop := errors.New("stop")
	var backoffs []time.Duration
	sleep = func(d time.Duration) {
		backoffs = append(backoffs, d)
		if len(backoffs) == 3 {
			panic(stop)
		}
	}
	t.Cleanup(func() { sleep = time.Sleep })

	cl := puma.NewMockClient(nil, context.Canceled)
	c := puma.NewConsumer("run_forever", func(context.Context, fate.Fate, puma.Event) error {
		return nil
	})

	require.PanicsWithValue(t, stop, func() {
		RunForever(context.Background, puma.NewSpec(cl, nil, c))
	})
	require.Equal(t, []time.Duration{expectedBackoff, expectedBackoff, expectedBackoff}, backoffs)
}
