package ppatterns_test

import (
	"context"
	"testing"

	"github.com/luno/fate"
	"github.com/luno/jettison/errors"
	"github.com/stretchr/testify/require"

	"github.com/luno/puma"
	"github.com/luno/puma/ppatterns"
)

func event(i int) puma.Event {
	return &puma.RowChangeEvent{
		EventHeader: puma.EventHeader{
			Database: "db",
			Table:    "t",
			Info:     puma.BinlogInfo{ServerID: 1, BinlogFile: "mysql-bin.000001", BinlogPosition: int64(i)},
		},
		Action: puma.RowActionInsert,
	}
}

func TestBestEffortConsumer(t *testing.T) {
	consumerErr := errors.New("consumer error")

	cases := []struct {
		name           string
		errorsPerEvent int
		retries        int
		input          int
		expected       []error
	}{
		{
			name:           "0 retries 0 errors",
			errorsPerEvent: 0,
			retries:        0,
			input:          3,
			expected:       []error{nil, nil, nil},
		},
		{
			name:           "0 retries 1 error",
			errorsPerEvent: 1,
			retries:        0,
			input:          3,
			expected:       []error{nil, nil, nil},
		},
		{
			name:           "1 retry 1 error",
			errorsPerEvent: 1,
			retries:        1,
			input:          4,
			expected:       []error{consumerErr, nil, consumerErr, nil},
		},
		{
			name:           "3 retries 2 errors",
			errorsPerEvent: 2,
			retries:        3,
			input:          6,
			expected:       []error{consumerErr, consumerErr, nil, consumerErr, consumerErr, nil},
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			events := make(map[int64]int)
			fn := func(_ context.Context, e puma.Event) error {
				p := e.Header().Info.BinlogPosition
				events[p]++
				if events[p] <= test.errorsPerEvent {
					return consumerErr
				}
				return nil
			}

			var actual []error
			c := ppatterns.NewBestEffortConsumer("best_effort_"+test.name, test.retries, fn)
			next := 1
			for i := 0; i < test.input; i++ {
				err := c.Consume(context.Background(), fate.New(), event(next))
				actual = append(actual, err)
				if err == nil {
					next++
				}
			}
			require.Equal(t, test.expected, actual)
		})
	}
}
