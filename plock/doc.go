// Package plock provides puma.Lock implementations. Each lock is scoped to
// one client name and is reentrant: TryAcquire on a lock already held by the
// same instance returns true without contacting the backend, unless the
// backend session was lost in which case ErrLockLost is returned and the
// next TryAcquire starts over.
package plock

import (
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// ErrLockLost is returned when a held lock's backend session expired.
var ErrLockLost = errors.New("lock session lost", j.C("ERR_3a9d51e07c6b2f84"))

// DefaultRoot is the key prefix under which client locks are created.
const DefaultRoot = "/puma/locks"

func lockKey(root, clientName string) string {
	return root + "/" + clientName
}
