package puma

import (
	"context"
	"fmt"

	"github.com/luno/fate"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrNoServerAvailable is returned when the router has no eligible
	// relay server. It is not retried; the next call re-resolves.
	ErrNoServerAvailable = errors.New("no relay server available", j.C("ERR_7d0c4b1a5e2f9836"))

	// ErrRetriesExhausted is matched by *RetriesExhaustedError.
	ErrRetriesExhausted = errors.New("relay call retries exhausted", j.C("ERR_2b8e6f01c94d7a53"))

	// ErrLockFailed is returned when the distributed lock backend fails.
	ErrLockFailed = errors.New("distributed lock failure", j.C("ERR_c61a3e97b05f2d48"))

	// ErrCancelled is returned when the caller's context is done while
	// waiting for the distributed lock.
	ErrCancelled = errors.New("cancelled waiting for lock", j.C("ERR_94f27d3b6a0e1c85"))

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("cluster client closed", j.C("ERR_0ea5d8c2f7b34961"))

	filterErr = errors.New("event filter error", j.C("ERR_a83d5c1e6f09b247"))
)

// EndpointError is a transport or server failure of a single relay call.
type EndpointError struct {
	Addr string
	Op   string
	Err  error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("relay %s on %s: %v", e.Op, e.Addr, e.Err)
}

func (e *EndpointError) Unwrap() error {
	return e.Err
}

// RetriesExhaustedError is returned when every attempt of an operation
// failed. Err is the last endpoint error.
type RetriesExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}

func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

// kindError tags a cause with one of the sentinel errors above while
// keeping the cause in the chain.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() error {
	return e.cause
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func withKind(kind, cause error) error {
	return &kindError{kind: kind, cause: cause}
}

// IsExpected returns true if the error is expected during normal streaming
// operation.
func IsExpected(err error) bool {
	if errors.IsAny(err, context.Canceled, context.DeadlineExceeded,
		ErrCancelled, ErrClosed, fate.ErrTempt) {
		return true
	}

	cd := status.Code(err)
	return cd == codes.Canceled || cd == codes.DeadlineExceeded
}

// IsFilterErr returns true if the error occurred during event filtering.
func IsFilterErr(err error) bool {
	return errors.Is(err, filterErr)
}

func asFilterErr(err error) error {
	return withKind(filterErr, err)
}
