package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"linkgate/pkg/storage"

	"github.com/redis/go-redis/v9"
)

type LinkCacheInterface interface {
	Get(ctx context.Context, slug string) (*CachedLink, error)
	Set(ctx context.Context, slug string, link *CachedLink, ttl time.Duration) error
	Delete(ctx context.Context, slug string) error
}

type LinkCache struct {
	client *redis.Client
}

// CachedLink is a link configuration snapshot. Missing marks a cached
// negative lookup.
type CachedLink struct {
	Missing bool          `json:"missing,omitempty"`
	Link    *storage.Link `json:"link,omitempty"`
}

func NewLinkCache(client *redis.Client) *LinkCache {
	return &LinkCache{client: client}
}

func linkKey(slug string) string {
	return "link:" + slug
}

// Get returns nil, nil on a cache miss.
func (c *LinkCache) Get(ctx context.Context, slug string) (*CachedLink, error) {
	val, err := c.client.Get(ctx, linkKey(slug)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", slug, err)
	}

	var cached CachedLink
	if err := json.Unmarshal(val, &cached); err != nil {
		return nil, fmt.Errorf("decode cached link %s: %w", slug, err)
	}
	return &cached, nil
}

func (c *LinkCache) Set(ctx context.Context, slug string, link *CachedLink, ttl time.Duration) error {
	data, err := json.Marshal(link)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, linkKey(slug), data, ttl).Err()
}

func (c *LinkCache) Delete(ctx context.Context, slug string) error {
	return c.client.Del(ctx, linkKey(slug)).Err()
}
