// Command pumatail tails a binlog stream from a relay cluster and prints
// each event. Only one pumatail per client name consumes at a time.
package main

import (
	"context"
	"os"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error(context.Background(), errors.Wrap(err, "pumatail"))
		os.Exit(1)
	}
}
