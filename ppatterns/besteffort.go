package ppatterns

import (
	"context"

	"github.com/luno/fate"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"

	"github.com/luno/puma"
)

// NewBestEffortConsumer returns a puma consumer that ignores errors
// after the provided number of retries and therefore eventually
// continues to the next event.
func NewBestEffortConsumer(name string, retries int, fn func(context.Context, puma.Event) error,
	opts ...puma.ConsumerOption,
) puma.Consumer {
	be := &bestEffort{
		inner:   fn,
		retries: retries,
		name:    name,
	}

	return puma.NewConsumer(name, be.consume, opts...)
}

type bestEffort struct {
	inner      func(context.Context, puma.Event) error
	retries    int
	name       string
	retryPos   puma.BinlogInfo
	retryCount int
}

func (b *bestEffort) consume(ctx context.Context, _ fate.Fate, e puma.Event) error {
	err := b.inner(ctx, e)
	if err != nil {
		pos := e.Header().Info
		if b.retryPos != pos {
			b.retryCount = 0
		}

		b.retryPos = pos
		b.retryCount++

		if b.retryCount > b.retries {
			b.retryCount = 0
			b.retryPos = puma.BinlogInfo{}
			if !puma.IsExpected(err) {
				log.Error(ctx, errors.Wrap(err, "best effort consumer ignoring error",
					j.KS("consumer", b.name)))
			}
			return nil
		}

		return err
	}

	b.retryCount = 0
	b.retryPos = puma.BinlogInfo{}
	return nil
}
