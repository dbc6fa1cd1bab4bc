package plock

import (
	"context"
	"sync"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/luno/puma"
)

const defaultSessionTTL = 10 // seconds

// Etcd is a lock backed by an etcd lease and mutex.
type Etcd struct {
	cli *clientv3.Client
	key string
	ttl int

	mu      sync.Mutex
	session *concurrency.Session
	mutex   *concurrency.Mutex
}

var _ puma.Lock = (*Etcd)(nil)

type EtcdOption func(*Etcd)

// WithEtcdSessionTTL sets the lease ttl in seconds. A crashed holder keeps
// the lock for up to this long.
func WithEtcdSessionTTL(seconds int) EtcdOption {
	return func(e *Etcd) {
		e.ttl = seconds
	}
}

// WithEtcdRoot sets the key prefix of the lock.
func WithEtcdRoot(root string) EtcdOption {
	return func(e *Etcd) {
		e.key = root
	}
}

func NewEtcd(cli *clientv3.Client, clientName string, opts ...EtcdOption) *Etcd {
	e := &Etcd{
		cli: cli,
		key: DefaultRoot,
		ttl: defaultSessionTTL,
	}
	for _, o := range opts {
		o(e)
	}
	e.key = lockKey(e.key, clientName)
	return e
}

func (e *Etcd) TryAcquire(ctx context.Context, timeout time.Duration) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mutex != nil {
		select {
		case <-e.session.Done():
			e.mutex = nil
			e.closeSession()
			return false, errors.Wrap(ErrLockLost, "", j.KS("key", e.key))
		default:
			return true, nil
		}
	}

	if e.session == nil {
		// The session outlives ctx, it is bound to the lock not the call.
		s, err := concurrency.NewSession(e.cli, concurrency.WithTTL(e.ttl))
		if err != nil {
			return false, errors.Wrap(err, "new etcd session")
		}
		e.session = s
	}

	m := concurrency.NewMutex(e.session, e.key)

	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := m.Lock(lctx)
	if err == nil {
		e.mutex = m
		return true, nil
	} else if ctx.Err() != nil {
		return false, ctx.Err()
	} else if lctx.Err() != nil {
		return false, nil
	}

	e.closeSession()
	return false, errors.Wrap(err, "etcd lock", j.KS("key", e.key))
}

func (e *Etcd) Release(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mutex != nil {
		if err := e.mutex.Unlock(ctx); err != nil {
			log.Error(ctx, errors.Wrap(err, "etcd unlock", j.KS("key", e.key)))
		}
		e.mutex = nil
	}
	e.closeSession()
}

func (e *Etcd) closeSession() {
	if e.session == nil {
		return
	}
	// Closing revokes the lease which deletes any keys attached to it.
	if err := e.session.Close(); err != nil {
		log.Info(context.Background(), "etcd session close failed",
			j.KS("key", e.key), log.WithError(err))
	}
	e.session = nil
}
