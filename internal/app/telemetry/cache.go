// Package telemetry mirrors session activity into short-lived Redis keys for
// out-of-band reads. Nothing here is authoritative: every call degrades to a
// no-op or an empty result when the cache is unreachable.
package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const keyPrefix = "gather"

// Cache wraps the Redis client with a readiness flag kept up to date by a
// background probe.
type Cache struct {
	rdb   *redis.Client
	ready atomic.Bool

	probeInterval time.Duration
	// OnError is called once per failed cache operation, after it was logged.
	OnError func(service string)
}

func NewCache(rdb *redis.Client, probeInterval time.Duration) *Cache {
	if probeInterval <= 0 {
		probeInterval = 10 * time.Second
	}
	return &Cache{rdb: rdb, probeInterval: probeInterval}
}

func (c *Cache) Ready() bool { return c.ready.Load() }

func (c *Cache) Client() *redis.Client { return c.rdb }

// Connect pings Redis with exponential backoff until it answers or ctx ends.
func (c *Cache) Connect(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0
	err := backoff.Retry(func() error {
		return c.rdb.Ping(ctx).Err()
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		log.Warn().Str("module", "telemetry").Err(err).Msg("redis unreachable, telemetry disabled")
		return err
	}
	c.setReady(true)
	return nil
}

// Run keeps the readiness flag in step with Redis until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	if !c.Ready() {
		_ = c.Connect(ctx)
	}
	t := time.NewTicker(c.probeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, c.probeInterval)
			err := c.rdb.Ping(pctx).Err()
			cancel()
			c.setReady(err == nil)
		}
	}
}

func (c *Cache) Close() error {
	c.setReady(false)
	return c.rdb.Close()
}

func (c *Cache) setReady(ok bool) {
	if c.ready.Swap(ok) == ok {
		return
	}
	if ok {
		log.Info().Str("module", "telemetry").Msg("redis ready")
	} else {
		log.Warn().Str("module", "telemetry").Msg("redis lost")
	}
}

func (c *Cache) fail(service, op string, err error) {
	log.Warn().Str("module", "telemetry").Str("service", service).Str("op", op).Err(err).Msg("cache call failed")
	if c.OnError != nil {
		c.OnError(service)
	}
}

// Services bundles the four telemetry mirrors over one cache.
type Services struct {
	Presence *Presence
	Activity *Activity
	Heatmap  *Heatmap
	LastSeen *LastSeen
}

func NewServices(c *Cache) *Services {
	return &Services{
		Presence: NewPresence(c),
		Activity: NewActivity(c),
		Heatmap:  NewHeatmap(c),
		LastSeen: NewLastSeen(c),
	}
}
