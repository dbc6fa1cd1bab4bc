package plock

import (
	"context"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"
	"github.com/z-division/go-zookeeper/zk"

	"github.com/luno/puma"
)

const zkLockPrefix = "lock-"

// ZKConn is the subset of *zk.Conn used by the lock.
type ZKConn interface {
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error)
	Children(path string) ([]string, *zk.Stat, error)
	Exists(path string) (bool, *zk.Stat, error)
	ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error)
	Delete(path string, version int32) error
	State() zk.State
	SessionID() int64
}

// ZK is a lock using the ZooKeeper lock recipe: every contender creates an
// ephemeral sequential node under the client's lock directory and the
// lowest sequence holds the lock. Contenders watch their predecessor only.
type ZK struct {
	conn ZKConn
	dir  string

	mu      sync.Mutex
	node    string
	held    bool
	session int64
}

var _ puma.Lock = (*ZK)(nil)

type ZKOption func(*ZK)

// WithZKRoot sets the parent path of the lock directory.
func WithZKRoot(root string) ZKOption {
	return func(z *ZK) {
		z.dir = root
	}
}

func NewZK(conn ZKConn, clientName string, opts ...ZKOption) *ZK {
	z := &ZK{
		conn: conn,
		dir:  DefaultRoot,
	}
	for _, o := range opts {
		o(z)
	}
	z.dir = lockKey(z.dir, clientName)
	return z
}

func (z *ZK) TryAcquire(ctx context.Context, timeout time.Duration) (bool, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.held {
		if err := z.checkHeld(); err != nil {
			z.held = false
			z.abandon()
			return false, err
		}
		return true, nil
	}

	if err := createRecursive(z.conn, z.dir); err != nil {
		return false, errors.Wrap(err, "create lock dir", j.KS("path", z.dir))
	}

	node, err := z.conn.CreateProtectedEphemeralSequential(
		path.Join(z.dir, zkLockPrefix), nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return false, errors.Wrap(err, "create lock node", j.KS("path", z.dir))
	}
	z.node = node

	t := time.NewTimer(timeout)
	defer t.Stop()

	for {
		pred, err := z.predecessor()
		if err != nil {
			z.abandon()
			return false, err
		} else if pred == "" {
			z.held = true
			z.session = z.conn.SessionID()
			return true, nil
		}

		exists, _, watch, err := z.conn.ExistsW(path.Join(z.dir, pred))
		if err != nil {
			z.abandon()
			return false, errors.Wrap(err, "watch lock predecessor", j.KS("path", z.dir))
		} else if !exists {
			continue
		}

		select {
		case <-watch:
		case <-t.C:
			z.abandon()
			return false, nil
		case <-ctx.Done():
			z.abandon()
			return false, ctx.Err()
		}
	}
}

// checkHeld returns ErrLockLost unless the session that created our node is
// still connected and the node still exists. The client reconnects with a
// new session after expiry, and the old ephemeral node is gone by then.
func (z *ZK) checkHeld() error {
	if z.conn.State() != zk.StateHasSession {
		return errors.Wrap(ErrLockLost, "no session", j.KS("path", z.dir))
	}
	if id := z.conn.SessionID(); id != z.session {
		return errors.Wrap(ErrLockLost, "session changed",
			j.MKV{"node": z.node, "session": z.session, "current": id})
	}

	ok, _, err := z.conn.Exists(z.node)
	if err != nil {
		return errors.Wrap(err, "check lock node", j.KS("node", z.node))
	} else if !ok {
		return errors.Wrap(ErrLockLost, "lock node missing", j.KS("node", z.node))
	}
	return nil
}

// predecessor returns the node just before ours, or empty if ours is the
// lowest.
func (z *ZK) predecessor() (string, error) {
	children, _, err := z.conn.Children(z.dir)
	if err != nil {
		return "", errors.Wrap(err, "list lock nodes", j.KS("path", z.dir))
	}

	slices.SortFunc(children, func(a, b string) int {
		return parseSeq(a) - parseSeq(b)
	})

	own := path.Base(z.node)
	i := slices.Index(children, own)
	if i < 0 {
		return "", errors.Wrap(ErrLockLost, "lock node missing", j.KS("node", z.node))
	} else if i == 0 {
		return "", nil
	}
	return children[i-1], nil
}

// abandon deletes our contender node.
func (z *ZK) abandon() {
	if z.node == "" {
		return
	}
	err := z.conn.Delete(z.node, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		log.Info(context.Background(), "zk lock node delete failed",
			j.KS("node", z.node), log.WithError(err))
	}
	z.node = ""
}

func (z *ZK) Release(context.Context) {
	z.mu.Lock()
	defer z.mu.Unlock()

	z.abandon()
	z.held = false
}

func parseSeq(name string) int {
	i := strings.LastIndex(name, zkLockPrefix)
	if i < 0 {
		return -1
	}
	seq, err := strconv.Atoi(name[i+len(zkLockPrefix):])
	if err != nil {
		return -1
	}
	return seq
}

// createRecursive creates p and any missing parents.
func createRecursive(conn ZKConn, p string) error {
	if p == "/" || p == "" {
		return nil
	}
	_, err := conn.Create(p, nil, 0, zk.WorldACL(zk.PermAll))
	if errors.Is(err, zk.ErrNoNode) {
		if err := createRecursive(conn, path.Dir(p)); err != nil {
			return err
		}
		_, err = conn.Create(p, nil, 0, zk.WorldACL(zk.PermAll))
	}
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return err
	}
	return nil
}
