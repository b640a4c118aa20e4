// Package rediscache adapts fetchgraph.Cache to a Redis-backed store,
// grounded on the pack's own goredis.NewClient/Set/Get usage (see
// jordigilh-kubernaut's gateway integration tests) generalized from a
// deduplication cache into a general-purpose Result cache.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	fetchgraph "github.com/fetchgraph/fetchgraph"
	"github.com/redis/go-redis/v9"
)

// Cache is a Redis-backed fetchgraph.Cache. Results are JSON-encoded;
// TTL, when non-zero, is applied to every write.
type Cache struct {
	client   *redis.Client
	registry *fetchgraph.Registry
	prefix   string
	ttl      time.Duration
}

// Option configures a Cache at construction.
type Option func(*Cache)

// WithKeyPrefix namespaces every Redis key written by this cache.
func WithKeyPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// WithTTL sets the expiration applied to every cached entry. Zero (the
// default) means entries never expire.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithRegistry installs per-source cache-key overrides, mirroring
// fetchgraph.MemoryCache's registry support.
func WithRegistry(registry *fetchgraph.Registry) Option {
	return func(c *Cache) { c.registry = registry }
}

// New builds a redis-backed cache over an already-connected client.
func New(client *redis.Client, opts ...Option) *Cache {
	c := &Cache{client: client, prefix: "fetchgraph:"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type redisEntry struct {
	Success        bool           `json:"success"`
	Data           any            `json:"data"`
	Attempts       int            `json:"attempts"`
	TimeoutAfterMS int            `json:"timeout_after_ms,omitempty"`
	CachedAt       int64          `json:"cached_at"`
}

func (c *Cache) key(source *fetchgraph.ResolvedSource) string {
	return c.prefix + fetchgraph.CanonicalCacheKey(source, nil, c.registry)
}

// Get implements fetchgraph.Cache.
func (c *Cache) Get(ctx context.Context, _ fetchgraph.Path, source *fetchgraph.ResolvedSource) (*fetchgraph.Result, bool, error) {
	raw, err := c.client.Get(ctx, c.key(source)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, err
	}

	return &fetchgraph.Result{
		Success:   entry.Success,
		Data:      entry.Data,
		Attempts:  entry.Attempts,
		Retryable: true,
		Cached:    true,
		CachedAt:  entry.CachedAt,
	}, true, nil
}

// Put implements fetchgraph.Cache.
func (c *Cache) Put(ctx context.Context, _ fetchgraph.Path, source *fetchgraph.ResolvedSource, result *fetchgraph.Result) error {
	entry := redisEntry{
		Success:        result.Success,
		Data:           result.Data,
		Attempts:       result.Attempts,
		TimeoutAfterMS: result.TimeoutAfterMS,
		CachedAt:       result.CachedAt,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(source), raw, c.ttl).Err()
}
