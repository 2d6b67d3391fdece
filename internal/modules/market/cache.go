package market

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	bundleCacheKey = "cache:market:bundle"
	bundleCacheTTL = 5 * time.Minute
)

// BundleCache keeps the composed market bundle in Redis, msgpack-encoded.
// Cache failures degrade to DB reads and are only logged.
type BundleCache struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewBundleCache creates a bundle cache over an existing Redis client.
func NewBundleCache(client *redis.Client, log zerolog.Logger) *BundleCache {
	return &BundleCache{
		client: client,
		log:    log.With().Str("component", "bundle_cache").Logger(),
	}
}

// Get returns the cached bundle, if present and decodable.
func (c *BundleCache) Get(ctx context.Context) (*MarketBundle, bool) {
	raw, err := c.client.Get(ctx, bundleCacheKey).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("bundle cache read failed")
		return nil, false
	}

	var bundle MarketBundle
	if err := msgpack.Unmarshal(raw, &bundle); err != nil {
		c.log.Warn().Err(err).Msg("bundle cache decode failed")
		return nil, false
	}
	return &bundle, true
}

// Set stores the bundle with the cache TTL.
func (c *BundleCache) Set(ctx context.Context, bundle *MarketBundle) {
	raw, err := msgpack.Marshal(bundle)
	if err != nil {
		c.log.Warn().Err(err).Msg("bundle cache encode failed")
		return
	}
	if err := c.client.Set(ctx, bundleCacheKey, raw, bundleCacheTTL).Err(); err != nil {
		c.log.Warn().Err(err).Msg("bundle cache write failed")
	}
}

// Invalidate drops the cached bundle after a refresh.
func (c *BundleCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, bundleCacheKey).Err(); err != nil {
		c.log.Warn().Err(err).Msg("bundle cache invalidate failed")
	}
}
