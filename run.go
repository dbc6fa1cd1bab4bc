package puma

import (
	"context"

	"github.com/luno/fate"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"
)

// Run executes the spec by fetching batches of events, feeding each into
// the consumer and acking the batch on success. If the store holds a
// checkpoint the relay is first rolled back to it. A consumer error rolls
// the relay back to the last acked position so the batch is fetched again.
// It always returns a non-nil error. Cancel the context to return early.
func Run(in context.Context, s Spec) error {
	ctx, cancel := context.WithCancel(in)
	defer cancel()

	var acked BinlogInfo

	if s.store != nil {
		defer s.store.Flush(context.Background()) // best effort flush with new context

		pos, err := s.store.GetCheckpoint(ctx, s.consumer.Name())
		if err != nil {
			return errors.Wrap(err, "get checkpoint error")
		}

		if !pos.IsZero() {
			if err := s.client.Rollback(ctx, pos); err != nil {
				return errors.Wrap(err, "rollback to checkpoint error",
					j.KS("position", pos.String()))
			}
			acked = pos
		}
	}

	// Check if the consumer requires to be reset.
	if r, ok := s.consumer.(ResetterCtx); ok {
		if err := r.Reset(ctx); err != nil {
			return errors.Wrap(err, "reset error")
		}
	}

	f := fate.New()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := s.client.Fetch(ctx, s.batchSize, s.timeout)
		if err != nil {
			return errors.Wrap(err, "fetch error")
		}

		if msg.Empty() {
			continue
		}

		for _, e := range msg.Events {
			h := e.Header()
			ctx := log.ContextWith(ctx, j.MKS{
				"binlog_pos": h.Info.String(),
				"event_kind": e.Kind().String(),
			})

			if err := s.consumer.Consume(ctx, f, e); err != nil {
				rollback(ctx, s.client, acked)
				return errors.Wrap(err, "consume error", j.MKS{
					"binlog_pos": h.Info.String(),
					"table":      h.Table,
				})
			}
		}

		last := msg.LastBinlogInfo
		if last.IsZero() {
			continue
		}

		if err := s.client.Ack(ctx, last); err != nil {
			return errors.Wrap(err, "ack error", j.KS("position", last.String()))
		}

		if s.store != nil {
			if err := s.store.SetCheckpoint(ctx, s.consumer.Name(), last); err != nil {
				return errors.Wrap(err, "set checkpoint error",
					j.KS("position", last.String()))
			}
		}

		acked = last
	}
}

// rollback rewinds the relay so the failed batch is fetched again. The zero
// position rewinds to the relay's last committed position.
func rollback(ctx context.Context, cl Client, to BinlogInfo) {
	if err := cl.Rollback(ctx, to); err != nil {
		log.Error(ctx, errors.Wrap(err, "rollback after consume error",
			j.KS("position", to.String())))
	}
}
