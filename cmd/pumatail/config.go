package main

import (
	"strings"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "PUMA"

type config struct {
	ClientName  string
	Database    string
	Tables      []string
	DML         bool
	DDL         bool
	Transaction bool

	Router        string
	Servers       []string
	ConsulAddr    string
	ConsulService string
	ConsulTags    []string

	Lock          string
	EtcdEndpoints []string
	ZKServers     []string
	LockTTL       time.Duration

	RetryLimit    int
	RetryInterval time.Duration
	BatchSize     int
	FetchTimeout  time.Duration

	CheckpointURL   string
	CheckpointDSN   string
	CheckpointTable string
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	f := cmd.Flags()
	f.String("config", "", "config file (yaml)")
	f.String("client", "", "client name, the unit of exclusive consumption")
	f.String("database", "", "database to subscribe to")
	f.StringSlice("tables", nil, "tables to subscribe to, all if empty")
	f.Bool("dml", true, "subscribe to row changes")
	f.Bool("ddl", false, "subscribe to schema changes")
	f.Bool("transaction", false, "subscribe to transaction boundaries")

	f.String("router", "static", "server discovery (static|consul)")
	f.StringSlice("servers", nil, "relay server addresses for the static router")
	f.String("consul-addr", "127.0.0.1:8500", "consul agent address")
	f.String("consul-service", "puma-relay", "consul service name of the relay servers")
	f.StringSlice("consul-tags", nil, "consul tags the relay servers must carry")

	f.String("lock", "etcd", "lock backend (etcd|zk|consul|mem)")
	f.StringSlice("etcd-endpoints", []string{"127.0.0.1:2379"}, "etcd endpoints")
	f.StringSlice("zk-servers", []string{"127.0.0.1:2181"}, "zookeeper servers")
	f.Duration("lock-ttl", 10*time.Second, "lock session ttl")

	f.Int("retry-limit", 3, "attempts per operation")
	f.Duration("retry-interval", 5*time.Second, "wait between attempts")
	f.Int("batch-size", 100, "maximum events per fetch")
	f.Duration("fetch-timeout", time.Second, "maximum wait per fetch")

	f.String("checkpoint-url", "", "blob bucket url storing checkpoints")
	f.String("checkpoint-dsn", "", "mysql dsn storing checkpoints")
	f.String("checkpoint-table", "puma_checkpoints", "mysql table storing checkpoints")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v.BindPFlags(f)
}

func loadConfig(v *viper.Viper) (config, error) {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return config{}, errors.Wrap(err, "read config", j.KS("file", file))
		}
	}

	c := config{
		ClientName:  v.GetString("client"),
		Database:    v.GetString("database"),
		Tables:      v.GetStringSlice("tables"),
		DML:         v.GetBool("dml"),
		DDL:         v.GetBool("ddl"),
		Transaction: v.GetBool("transaction"),

		Router:        v.GetString("router"),
		Servers:       v.GetStringSlice("servers"),
		ConsulAddr:    v.GetString("consul-addr"),
		ConsulService: v.GetString("consul-service"),
		ConsulTags:    v.GetStringSlice("consul-tags"),

		Lock:          v.GetString("lock"),
		EtcdEndpoints: v.GetStringSlice("etcd-endpoints"),
		ZKServers:     v.GetStringSlice("zk-servers"),
		LockTTL:       v.GetDuration("lock-ttl"),

		RetryLimit:    v.GetInt("retry-limit"),
		RetryInterval: v.GetDuration("retry-interval"),
		BatchSize:     v.GetInt("batch-size"),
		FetchTimeout:  v.GetDuration("fetch-timeout"),

		CheckpointURL:   v.GetString("checkpoint-url"),
		CheckpointDSN:   v.GetString("checkpoint-dsn"),
		CheckpointTable: v.GetString("checkpoint-table"),
	}

	if c.ClientName == "" {
		return config{}, errors.New("client name required")
	}
	if c.Database == "" {
		return config{}, errors.New("database required")
	}
	if c.CheckpointURL != "" && c.CheckpointDSN != "" {
		return config{}, errors.New("checkpoint url and dsn are exclusive")
	}

	return c, nil
}
