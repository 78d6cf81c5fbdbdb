package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sells-group/retell-relay/internal/model"
)

// PicklistCache stores the Lead picklist values between requests.
type PicklistCache interface {
	Get(ctx context.Context) (*model.Picklists, bool)
	Set(ctx context.Context, p *model.Picklists)
}

// MemoryCache keeps picklists in process for ttl.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	value   *model.Picklists
	expires time.Time
}

// NewMemoryCache creates an in-process cache.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context) (*model.Picklists, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.value == nil || !c.now().Before(c.expires) {
		return nil, false
	}
	return c.value, true
}

func (c *MemoryCache) Set(_ context.Context, p *model.Picklists) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = p
	c.expires = c.now().Add(c.ttl)
}

// RedisCache shares picklists between relay instances. Redis failures are
// logged and treated as cache misses.
type RedisCache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisCache creates a cache backed by the given client.
func NewRedisCache(rdb *redis.Client, key string, ttl time.Duration) *RedisCache {
	if key == "" {
		key = "retell-relay:picklists:Lead"
	}
	return &RedisCache{rdb: rdb, key: key, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context) (*model.Picklists, bool) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	if err != nil {
		if err != redis.Nil {
			Logger(ctx).Warn("relay: picklist cache get failed", zap.String("key", c.key), zap.Error(err))
		}
		return nil, false
	}
	var p model.Picklists
	if err := json.Unmarshal(raw, &p); err != nil {
		Logger(ctx).Warn("relay: picklist cache entry unreadable", zap.String("key", c.key), zap.Error(err))
		return nil, false
	}
	return &p, true
}

func (c *RedisCache) Set(ctx context.Context, p *model.Picklists) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		Logger(ctx).Warn("relay: picklist cache set failed", zap.String("key", c.key), zap.Error(err))
	}
}

// StaticCache always returns the same picklists.
type StaticCache struct {
	Values *model.Picklists
}

func (c StaticCache) Get(context.Context) (*model.Picklists, bool) {
	return c.Values, c.Values != nil
}

func (StaticCache) Set(context.Context, *model.Picklists) {}
