package ppatterns

import (
	"context"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"

	"github.com/luno/puma"
)

const (
	expectedBackoff = time.Millisecond * 100
	errorBackoff    = time.Minute
)

var sleep = time.Sleep

// RunForever continuously calls the run function, backing off
// and logging on unexpected errors.
func RunForever(getCtx func() context.Context, req puma.Spec) {
	for {
		sleep(runOnce(getCtx(), req))
	}
}

// runOnce runs the spec and returns how long to back off before the next
// run.
func runOnce(ctx context.Context, req puma.Spec) time.Duration {
	ctx = log.ContextWith(ctx, j.KS("consumer", req.Name()))

	err := puma.Run(ctx, req)
	if puma.IsExpected(err) {
		// Just retry on expected errors.
		return expectedBackoff // Don't spin
	}

	log.Error(ctx, errors.Wrap(err, "run forever error"))
	return errorBackoff
}
