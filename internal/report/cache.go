package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emanehab99/gstar-stats/internal/core"
)

const cacheKeyPrefix = "usagereport:report:"

// Cache stores assembled reports in Redis as JSON, keyed by period and the
// usage source they were built from.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// CacheKey is the key of one period's report. Source names the usage source
// and the inputs it was read from, e.g. "events:<fingerprint>".
func CacheKey(p core.Period, source string) string {
	return cacheKeyPrefix + source + ":" + p.Key()
}

// Get returns the cached report. A miss is not an error.
func (c *Cache) Get(ctx context.Context, p core.Period, source string) (core.Report, bool, error) {
	raw, err := c.client.Get(ctx, CacheKey(p, source)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.Report{}, false, nil
	}
	if err != nil {
		return core.Report{}, false, fmt.Errorf("report: cache get: %w", err)
	}
	var rep core.Report
	if err := json.Unmarshal(raw, &rep); err != nil {
		return core.Report{}, false, fmt.Errorf("report: decode cached report: %w", err)
	}
	return rep, true, nil
}

func (c *Cache) Put(ctx context.Context, rep core.Report, source string) error {
	raw, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("report: encode report: %w", err)
	}
	if err := c.client.Set(ctx, CacheKey(rep.Period, source), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("report: cache put: %w", err)
	}
	return nil
}

// Invalidate drops the cached report for one period and source.
func (c *Cache) Invalidate(ctx context.Context, p core.Period, source string) error {
	if err := c.client.Del(ctx, CacheKey(p, source)).Err(); err != nil {
		return fmt.Errorf("report: cache invalidate: %w", err)
	}
	return nil
}

// InvalidateSource drops every cached report whose source starts with the
// given kind ("events" or "extract"), whatever its period or fingerprint.
// A nil Cache has nothing to drop.
func (c *Cache) InvalidateSource(ctx context.Context, kind string) (int64, error) {
	if c == nil {
		return 0, nil
	}
	var keys []string
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+kind+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("report: cache scan: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("report: cache invalidate %s: %w", kind, err)
	}
	return n, nil
}

// GetOrBuild serves the report from the cache or builds and stores it. A nil
// Cache always builds. Cache failures are logged and never fail the build.
func (c *Cache) GetOrBuild(ctx context.Context, p core.Period, source string, build func(context.Context) (core.Report, error)) (core.Report, error) {
	if c == nil {
		return build(ctx)
	}
	rep, ok, err := c.Get(ctx, p, source)
	if err != nil {
		log.WithField("event", "cache_get_failed").WithError(err).Warn("report cache unavailable")
	} else if ok {
		log.WithField("event", "cache_hit").WithField("key", CacheKey(p, source)).Debug("report served from cache")
		return rep, nil
	}
	rep, err = build(ctx)
	if err != nil {
		return core.Report{}, err
	}
	if err := c.Put(ctx, rep, source); err != nil {
		log.WithField("event", "cache_put_failed").WithError(err).Warn("report not cached")
	}
	return rep, nil
}
