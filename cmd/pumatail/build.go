package main

import (
	"context"
	"database/sql"
	"io"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	consul "github.com/hashicorp/consul/api"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/z-division/go-zookeeper/zk"
	clientv3 "go.etcd.io/etcd/client/v3"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/luno/puma"
	"github.com/luno/puma/pblob"
	"github.com/luno/puma/plock"
	"github.com/luno/puma/prouter"
	"github.com/luno/puma/psql"
)

// closers collects resources to release on exit, last first.
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

func (c closers) Close() error {
	var first error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ io.Closer = closers(nil)

func streamConfig(c config, r puma.Router) puma.StreamConfig {
	return puma.StreamConfig{
		ClientName:  c.ClientName,
		Database:    c.Database,
		Tables:      c.Tables,
		DML:         c.DML,
		DDL:         c.DDL,
		Transaction: c.Transaction,
		Router:      r,
	}
}

func newConsulClient(c config) (*consul.Client, error) {
	cfg := consul.DefaultConfig()
	cfg.Address = c.ConsulAddr
	return consul.NewClient(cfg)
}

func buildRouter(c config) (puma.Router, error) {
	switch c.Router {
	case "static":
		if len(c.Servers) == 0 {
			return nil, errors.New("static router requires servers")
		}
		return prouter.NewStatic(c.Servers...), nil
	case "consul":
		cl, err := newConsulClient(c)
		if err != nil {
			return nil, errors.Wrap(err, "consul client")
		}
		return prouter.NewConsul(cl, c.ConsulService,
			prouter.WithTags(c.ConsulTags...)), nil
	}
	return nil, errors.New("unknown router", j.KS("router", c.Router))
}

func buildLock(c config, cl *closers) (puma.Lock, error) {
	ttl := int(c.LockTTL / time.Second)

	switch c.Lock {
	case "mem":
		return plock.NewMemRegistry().NewLock(c.ClientName), nil
	case "etcd":
		cli, err := clientv3.New(clientv3.Config{
			Endpoints:   c.EtcdEndpoints,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return nil, errors.Wrap(err, "etcd client")
		}
		cl.add(cli.Close)
		return plock.NewEtcd(cli, c.ClientName, plock.WithEtcdSessionTTL(ttl)), nil
	case "zk":
		conn, _, err := zk.Connect(c.ZKServers, c.LockTTL)
		if err != nil {
			return nil, errors.Wrap(err, "zk connect")
		}
		cl.add(func() error { conn.Close(); return nil })
		return plock.NewZK(conn, c.ClientName), nil
	case "consul":
		client, err := newConsulClient(c)
		if err != nil {
			return nil, errors.Wrap(err, "consul client")
		}
		return plock.NewConsul(client, c.ClientName,
			plock.WithConsulSessionTTL(strconv.Itoa(ttl)+"s")), nil
	}
	return nil, errors.New("unknown lock", j.KS("lock", c.Lock))
}

// buildStore returns the configured checkpoint store or nil if none is.
func buildStore(ctx context.Context, c config, cl *closers) (puma.CheckpointStore, error) {
	switch {
	case strings.HasPrefix(c.CheckpointURL, "s3://"):
		bucket := strings.TrimPrefix(c.CheckpointURL, "s3://")
		bucket, prefix, _ := strings.Cut(bucket, "/")
		s, err := pblob.OpenS3Store(ctx, "checkpoints", bucket, pblob.WithPrefix(prefix))
		if err != nil {
			return nil, err
		}
		cl.add(s.Close)
		return s, nil
	case c.CheckpointURL != "":
		s, err := pblob.OpenStore(ctx, "checkpoints", c.CheckpointURL)
		if err != nil {
			return nil, err
		}
		cl.add(s.Close)
		return s, nil
	case c.CheckpointDSN != "":
		dbc, err := sql.Open("mysql", c.CheckpointDSN)
		if err != nil {
			return nil, errors.Wrap(err, "open mysql")
		}
		cl.add(dbc.Close)
		return psql.NewCheckpointsTable(c.CheckpointTable).ToStore(dbc), nil
	}
	return nil, nil
}
