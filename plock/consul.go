package plock

import (
	"context"
	"sync"
	"time"

	consul "github.com/hashicorp/consul/api"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"

	"github.com/luno/puma"
)

// Consul is a lock backed by a Consul session and KV key.
type Consul struct {
	client     *consul.Client
	key        string
	value      []byte
	sessionTTL string

	mu   sync.Mutex
	lock *consul.Lock
	lost <-chan struct{}
}

var _ puma.Lock = (*Consul)(nil)

type ConsulOption func(*Consul)

// WithConsulSessionTTL sets the session ttl, ex. "15s".
func WithConsulSessionTTL(ttl string) ConsulOption {
	return func(c *Consul) {
		c.sessionTTL = ttl
	}
}

// WithConsulRoot sets the key prefix of the lock.
func WithConsulRoot(root string) ConsulOption {
	return func(c *Consul) {
		c.key = root
	}
}

// WithConsulValue sets the value stored in the lock key, usually something
// identifying the holding process.
func WithConsulValue(v []byte) ConsulOption {
	return func(c *Consul) {
		c.value = v
	}
}

func NewConsul(client *consul.Client, clientName string, opts ...ConsulOption) *Consul {
	c := &Consul{
		client:     client,
		key:        DefaultRoot,
		sessionTTL: consul.DefaultLockSessionTTL,
	}
	for _, o := range opts {
		o(c)
	}
	// Consul keys have no leading slash.
	c.key = trimSlash(lockKey(c.key, clientName))
	return c
}

func (c *Consul) TryAcquire(ctx context.Context, timeout time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lost != nil {
		select {
		case <-c.lost:
			c.lock, c.lost = nil, nil
			return false, errors.Wrap(ErrLockLost, "", j.KS("key", c.key))
		default:
			return true, nil
		}
	}

	l, err := c.client.LockOpts(&consul.LockOptions{
		Key:          c.key,
		Value:        c.value,
		SessionTTL:   c.sessionTTL,
		LockWaitTime: timeout,
		LockTryOnce:  true,
	})
	if err != nil {
		return false, errors.Wrap(err, "consul lock options", j.KS("key", c.key))
	}

	lost, err := l.Lock(ctx.Done())
	if ctx.Err() != nil {
		return false, ctx.Err()
	} else if err != nil {
		return false, errors.Wrap(err, "consul lock", j.KS("key", c.key))
	} else if lost == nil {
		// Consul returns a nil channel if the lock is not acquired
		// within the wait time.
		return false, nil
	}

	c.lock, c.lost = l, lost
	return true, nil
}

func (c *Consul) Release(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lock == nil {
		return
	}

	if err := c.lock.Unlock(); err != nil {
		log.Error(ctx, errors.Wrap(err, "consul unlock", j.KS("key", c.key)))
	}
	// Destroy fails while other clients wait on the key. That is fine,
	// the last one out cleans up.
	if err := c.lock.Destroy(); err != nil && !errors.Is(err, consul.ErrLockInUse) {
		log.Info(ctx, "consul lock destroy failed",
			j.KS("key", c.key), log.WithError(err))
	}
	c.lock, c.lost = nil, nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[0] == '/' {
		s = s[1:]
	}
	return s
}
