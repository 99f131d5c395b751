package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const activeFeaturesKey = "portal:catalog:active"

// Cache is a Redis read-through cache for the active feature catalog. It
// lives in the store adapter layer; the resolution engine itself stays
// cache-free and simply sees a faster catalog read.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetActive returns the cached active feature list, or ok=false on a miss.
func (c *Cache) GetActive(ctx context.Context) ([]Feature, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, activeFeaturesKey).Bytes()
	if err != nil {
		return nil, false
	}
	var features []Feature
	if err := json.Unmarshal(raw, &features); err != nil {
		// Corrupt entry: drop it so the next read repopulates.
		_ = c.client.Del(ctx, activeFeaturesKey).Err()
		return nil, false
	}
	return features, true
}

// SetActive stores the active feature list.
func (c *Cache) SetActive(ctx context.Context, features []Feature) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(features)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, activeFeaturesKey, raw, c.ttl).Err()
}

// Invalidate drops the cached catalog after a mutation.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, activeFeaturesKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
