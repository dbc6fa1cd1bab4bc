package puma

import (
	"time"
)

const (
	defaultRetryLimit         = 3
	defaultRetryInterval      = 5 * time.Second
	defaultLockPollTimeout    = time.Second
	defaultLockNoticeInterval = time.Minute
)

// ClusterOption defines a functional option that configures a ClusterClient.
type ClusterOption func(*ClusterClient)

// WithRetryLimit sets the number of retries after the first failed
// attempt of an operation. Zero disables retries.
func WithRetryLimit(n int) ClusterOption {
	return func(c *ClusterClient) {
		c.retryLimit = n
	}
}

// WithRetryInterval sets the pause between attempts.
func WithRetryInterval(d time.Duration) ClusterOption {
	return func(c *ClusterClient) {
		c.retryInterval = d
	}
}

// WithLockPollTimeout sets how long each lock acquisition attempt waits.
func WithLockPollTimeout(d time.Duration) ClusterOption {
	return func(c *ClusterClient) {
		c.lockPollTimeout = d
	}
}

// WithLockNoticeInterval sets the minimum time between notices logged
// while waiting for the lock.
func WithLockNoticeInterval(d time.Duration) ClusterOption {
	return func(c *ClusterClient) {
		c.lockNoticeInterval = d
	}
}

// WithEndpointFactory replaces the default gRPC endpoint factory.
func WithEndpointFactory(f EndpointFactory) ClusterOption {
	return func(c *ClusterClient) {
		c.newEndpointFn = f
	}
}
