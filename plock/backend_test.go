package plock_test

import (
	"os"
	"strings"
	"testing"
	"time"

	consul "github.com/hashicorp/consul/api"
	"github.com/luno/jettison/jtest"
	"github.com/z-division/go-zookeeper/zk"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/luno/puma/plock"
)

// Backend tests run against live services when their address is set, ex.
// PUMA_TEST_ETCD=127.0.0.1:2379.

func TestEtcd(t *testing.T) {
	addr := os.Getenv("PUMA_TEST_ETCD")
	if addr == "" {
		t.Skip("PUMA_TEST_ETCD not set")
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   strings.Split(addr, ","),
		DialTimeout: 5 * time.Second,
	})
	jtest.RequireNil(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	name := "test-" + t.Name()
	testLock(t, plock.NewEtcd(cli, name), plock.NewEtcd(cli, name))
}

func TestConsul(t *testing.T) {
	addr := os.Getenv("PUMA_TEST_CONSUL")
	if addr == "" {
		t.Skip("PUMA_TEST_CONSUL not set")
	}

	cfg := consul.DefaultConfig()
	cfg.Address = addr
	cli, err := consul.NewClient(cfg)
	jtest.RequireNil(t, err)

	name := "test-" + t.Name()
	testLock(t, plock.NewConsul(cli, name), plock.NewConsul(cli, name))
}

func TestZKLive(t *testing.T) {
	addr := os.Getenv("PUMA_TEST_ZK")
	if addr == "" {
		t.Skip("PUMA_TEST_ZK not set")
	}

	conn, _, err := zk.Connect(strings.Split(addr, ","), 10*time.Second)
	jtest.RequireNil(t, err)
	t.Cleanup(conn.Close)

	name := "test-" + t.Name()
	testLock(t, plock.NewZK(conn, name), plock.NewZK(conn, name))
}
