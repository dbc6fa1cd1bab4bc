package prouter

import (
	"context"
	"net"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	consul "github.com/hashicorp/consul/api"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"
	"github.com/patrickmn/go-cache"

	"github.com/luno/puma"
)

const (
	defaultRefreshInterval = 5 * time.Second
	membersKey             = "members"
)

// ConsulHealth is the subset of the consul health API used for discovery.
type ConsulHealth interface {
	ServiceMultipleTags(service string, tags []string, passingOnly bool,
		q *consul.QueryOptions) ([]*consul.ServiceEntry, *consul.QueryMeta, error)
}

// Consul routes to the healthy instances of a Consul service. Membership is
// cached for the refresh interval so Exists is cheap enough to call before
// every operation. A failed lookup is logged and treated as no members.
type Consul struct {
	health      ConsulHealth
	service     string
	tags        []string
	passingOnly bool
	datacenter  string
	refresh     time.Duration

	members *cache.Cache
	next    atomic.Uint64
}

var _ puma.Router = (*Consul)(nil)

type ConsulOption func(*Consul)

// WithTags only routes to instances with all of the tags.
func WithTags(tags ...string) ConsulOption {
	return func(c *Consul) {
		c.tags = tags
	}
}

// WithDatacenter queries a datacenter other than the agent's.
func WithDatacenter(dc string) ConsulOption {
	return func(c *Consul) {
		c.datacenter = dc
	}
}

// WithRefreshInterval sets how long discovered members are cached.
func WithRefreshInterval(d time.Duration) ConsulOption {
	return func(c *Consul) {
		c.refresh = d
	}
}

// WithUnhealthy also routes to instances whose health checks are failing.
func WithUnhealthy() ConsulOption {
	return func(c *Consul) {
		c.passingOnly = false
	}
}

// NewConsul returns a router over the instances of service registered with
// the Consul agent of client.
func NewConsul(client *consul.Client, service string, opts ...ConsulOption) *Consul {
	return NewConsulWithHealth(client.Health(), service, opts...)
}

// NewConsulWithHealth is NewConsul for a custom health API.
func NewConsulWithHealth(h ConsulHealth, service string, opts ...ConsulOption) *Consul {
	c := &Consul{
		health:      h,
		service:     service,
		passingOnly: true,
		refresh:     defaultRefreshInterval,
	}
	for _, o := range opts {
		o(c)
	}
	c.members = cache.New(c.refresh, 2*c.refresh)
	return c
}

func (c *Consul) Next(ctx context.Context) (string, bool) {
	members := c.lookup(ctx)
	if len(members) == 0 {
		return "", false
	}
	i := c.next.Add(1) - 1
	return members[i%uint64(len(members))], true
}

func (c *Consul) Exists(ctx context.Context, addr string) bool {
	return slices.Contains(c.lookup(ctx), addr)
}

func (c *Consul) lookup(ctx context.Context) []string {
	if v, ok := c.members.Get(membersKey); ok {
		return v.([]string)
	}

	members, err := c.discover(ctx)
	if err != nil {
		log.Error(ctx, errors.Wrap(err, "consul discovery",
			j.KS("service", c.service)))
		return nil
	}

	c.members.SetDefault(membersKey, members)
	return members
}

func (c *Consul) discover(ctx context.Context) ([]string, error) {
	q := &consul.QueryOptions{Datacenter: c.datacenter}

	entries, _, err := c.health.ServiceMultipleTags(c.service, c.tags,
		c.passingOnly, q.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	members := make([]string, 0, len(entries))
	for _, e := range entries {
		host := e.Service.Address
		if host == "" {
			host = e.Node.Address
		}
		members = append(members, net.JoinHostPort(host, strconv.Itoa(e.Service.Port)))
	}

	slices.Sort(members)
	return members, nil
}
