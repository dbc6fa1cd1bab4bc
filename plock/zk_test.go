package plock_test

import (
	"fmt"
	"path"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/z-division/go-zookeeper/zk"

	"github.com/luno/puma/plock"
)

// fakeZK is an in-memory ZooKeeper tree supporting the lock recipe.
type fakeZK struct {
	mu      sync.Mutex
	nodes   map[string]bool
	watches map[string][]chan zk.Event
	seq     int
	state   zk.State
	session int64
}

func newFakeZK() *fakeZK {
	return &fakeZK{
		nodes:   map[string]bool{"/": true},
		watches: make(map[string][]chan zk.Event),
		state:   zk.StateHasSession,
		session: 1,
	}
}

func (f *fakeZK) Create(p string, _ []byte, _ int32, _ []zk.ACL) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nodes[p] {
		return "", zk.ErrNodeExists
	}
	if !f.nodes[path.Dir(p)] {
		return "", zk.ErrNoNode
	}
	f.nodes[p] = true
	return p, nil
}

func (f *fakeZK) CreateProtectedEphemeralSequential(p string, _ []byte, _ []zk.ACL) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dir, prefix := path.Split(p)
	f.seq++
	node := fmt.Sprintf("%s_c_%d-%s%010d", dir, f.seq, prefix, f.seq)
	f.nodes[node] = true
	return node, nil
}

func (f *fakeZK) Children(p string) ([]string, *zk.Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []string
	for n := range f.nodes {
		if n != p && path.Dir(n) == p {
			res = append(res, strings.TrimPrefix(n, p+"/"))
		}
	}
	return res, &zk.Stat{}, nil
}

func (f *fakeZK) Exists(p string) (bool, *zk.Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes[p], &zk.Stat{}, nil
}

func (f *fakeZK) ExistsW(p string) (bool, *zk.Stat, <-chan zk.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan zk.Event, 1)
	f.watches[p] = append(f.watches[p], ch)
	return f.nodes[p], &zk.Stat{}, ch, nil
}

func (f *fakeZK) Delete(p string, _ int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.nodes[p] {
		return zk.ErrNoNode
	}
	delete(f.nodes, p)
	for _, ch := range f.watches[p] {
		ch <- zk.Event{Type: zk.EventNodeDeleted, Path: p}
	}
	delete(f.watches, p)
	return nil
}

func (f *fakeZK) State() zk.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeZK) SessionID() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

// reconnect starts a new session as the client does after expiry. The
// ephemeral nodes of the old session are gone.
func (f *fakeZK) reconnect(ephemeral ...string) {
	for _, n := range ephemeral {
		_ = f.Delete(n, -1)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session++
	f.state = zk.StateHasSession
}

func (f *fakeZK) setState(s zk.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *fakeZK) count(dir string) int {
	children, _, _ := f.Children(dir)
	return len(children)
}

func TestZK(t *testing.T) {
	conn := newFakeZK()
	testLock(t, plock.NewZK(conn, "client"), plock.NewZK(conn, "client"))

	// All contender nodes are cleaned up.
	require.Equal(t, 0, conn.count("/puma/locks/client"))
}

func TestZKLost(t *testing.T) {
	conn := newFakeZK()
	l := plock.NewZK(conn, "client", plock.WithZKRoot("/relay"))

	ok, err := l.TryAcquire(t.Context(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, conn.count("/relay/client"))

	conn.setState(zk.StateExpired)
	_, err = l.TryAcquire(t.Context(), 0)
	require.ErrorIs(t, err, plock.ErrLockLost)
}

func TestZKSessionExpired(t *testing.T) {
	conn := newFakeZK()
	l1 := plock.NewZK(conn, "client")
	l2 := plock.NewZK(conn, "client")

	ok, err := l1.TryAcquire(t.Context(), 0)
	require.NoError(t, err)
	require.True(t, ok)

	children, _, err := conn.Children("/puma/locks/client")
	require.NoError(t, err)
	require.Len(t, children, 1)
	conn.reconnect(path.Join("/puma/locks/client", children[0]))

	ok, err = l2.TryAcquire(t.Context(), 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l1.TryAcquire(t.Context(), 0)
	require.ErrorIs(t, err, plock.ErrLockLost)
	require.False(t, ok)

	// l2 keeps the lock and l1 queues behind it.
	ok, err = l2.TryAcquire(t.Context(), 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l1.TryAcquire(t.Context(), 0)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, conn.count("/puma/locks/client"))
}

func TestZKNodeDeleted(t *testing.T) {
	conn := newFakeZK()
	l := plock.NewZK(conn, "client")

	ok, err := l.TryAcquire(t.Context(), 0)
	require.NoError(t, err)
	require.True(t, ok)

	children, _, err := conn.Children("/puma/locks/client")
	require.NoError(t, err)
	require.NoError(t, conn.Delete(path.Join("/puma/locks/client", children[0]), -1))

	_, err = l.TryAcquire(t.Context(), 0)
	require.ErrorIs(t, err, plock.ErrLockLost)
}
