package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores JSON catalog payloads in Redis. List entries are namespaced by
// a generation counter so a write invalidates every cached page at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache constructs a cache helper. A nil client or non-positive ttl
// disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, prefix: "catalog:"}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

func (c *Cache) materialKey(id int64) string {
	return fmt.Sprintf("%smaterial:%d", c.prefix, id)
}

func (c *Cache) generationKey() string {
	return c.prefix + "generation"
}

// listKey builds the key of a list page under the current generation.
func (c *Cache) listKey(ctx context.Context, name string, page, perPage int) (string, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("%slist:%d:%d:%d:%s", c.prefix, gen, page, perPage, name), nil
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.enabled() || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if !c.enabled() || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Invalidate drops the cached material and retires every cached list page.
func (c *Cache) Invalidate(ctx context.Context, id int64) error {
	if !c.enabled() {
		return nil
	}
	pipe := c.client.TxPipeline()
	if id > 0 {
		pipe.Del(ctx, c.materialKey(id))
	}
	pipe.Incr(ctx, c.generationKey())
	_, err := pipe.Exec(ctx)
	return err
}
