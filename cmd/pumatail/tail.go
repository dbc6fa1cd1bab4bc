package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luno/fate"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/luno/puma"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "pumatail",
		Short: "Tail a binlog stream from a relay cluster",
		Long: `pumatail subscribes to a database on a cluster of binlog relay servers
and prints every event. Consumption is exclusive per client name: other
pumatail instances with the same name wait for the lock.

All flags can also be set as PUMA_<FLAG> environment variables or in a
yaml config file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(v)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = tail(ctx, c, cmd.OutOrStdout())
			if puma.IsExpected(err) {
				return nil
			}
			return err
		},
	}

	cobra.CheckErr(bindFlags(cmd, v))

	return cmd
}

func tail(ctx context.Context, c config, out io.Writer) error {
	var cl closers
	defer func() {
		if err := cl.Close(); err != nil {
			log.Error(ctx, errors.Wrap(err, "close"))
		}
	}()

	router, err := buildRouter(c)
	if err != nil {
		return err
	}

	lock, err := buildLock(c, &cl)
	if err != nil {
		return err
	}

	store, err := buildStore(ctx, c, &cl)
	if err != nil {
		return err
	}

	client, err := puma.NewClusterClient(streamConfig(c, router), lock,
		puma.WithRetryLimit(c.RetryLimit),
		puma.WithRetryInterval(c.RetryInterval))
	if err != nil {
		return err
	}
	defer client.Close()

	ctx = log.ContextWith(ctx, j.KS("client", c.ClientName))
	log.Info(ctx, "tailing binlog", j.MKV{"database": c.Database, "tables": c.Tables})

	if store != nil {
		consumer := puma.NewConsumer(c.ClientName,
			func(_ context.Context, _ fate.Fate, e puma.Event) error {
				return printEvent(out, e)
			})
		return puma.Run(ctx, puma.NewSpec(client, store, consumer,
			puma.WithBatchSize(c.BatchSize),
			puma.WithFetchTimeout(c.FetchTimeout)))
	}

	return tailForever(ctx, client, out, c.BatchSize, c.FetchTimeout)
}

// tailForever prints fetched batches, acking each before the next fetch.
// It always returns a non-nil error.
func tailForever(ctx context.Context, client puma.Client, out io.Writer,
	batchSize int, timeout time.Duration,
) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := client.FetchWithAck(ctx, batchSize, timeout)
		if err != nil {
			return err
		}

		for _, e := range msg.Events {
			if err := printEvent(out, e); err != nil {
				return err
			}
		}
	}
}

func printEvent(out io.Writer, e puma.Event) error {
	h := e.Header()
	line := fmt.Sprintf("%s %s.%s %s", h.Info, h.Database, h.Table, e.Kind())

	switch ev := e.(type) {
	case *puma.RowChangeEvent:
		line += " " + ev.Action.String()
		for _, col := range ev.Columns {
			line += fmt.Sprintf(" %s=%q->%q", col.Name, col.Before, col.After)
		}
	case *puma.DDLEvent:
		line += " " + ev.SQL
	case *puma.TransactionEvent:
		line += fmt.Sprintf(" begin=%t", ev.Begin)
	case *puma.GTIDEvent:
		line += " " + ev.GTID
	case *puma.UnparsedEvent:
		line += fmt.Sprintf(" raw_type=%d", ev.RawType)
	}

	_, err := fmt.Fprintln(out, line)
	return err
}
