package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/telemetry"
)

// Default configuration values.
const (
	defaultProductTTL     = time.Hour
	defaultNearCacheSize  = 10000
	defaultNearCacheTTL   = time.Minute
	nearCacheMetricsLabel = "product_near"
)

// ProductConfig — конфигурация ProductCache.
type ProductConfig struct {
	// TTL — время жизни записи в Store (default: 1h).
	TTL time.Duration

	// NearCacheSize — размер per-process LRU (default: 10000).
	NearCacheSize int

	// NearCacheTTL — время жизни записи в LRU (default: 1m).
	NearCacheTTL time.Duration

	Logger *slog.Logger
}

// ProductCache — товары в Store с per-process LRU перед ним.
type ProductCache struct {
	cache *Cache
	near  *expirable.LRU[string, domain.Product]
}

// NewProductCache создаёт ProductCache.
func NewProductCache(store Store, cfg ProductConfig) *ProductCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultProductTTL
	}

	size := cfg.NearCacheSize
	if size <= 0 {
		size = defaultNearCacheSize
	}

	nearTTL := cfg.NearCacheTTL
	if nearTTL <= 0 {
		nearTTL = defaultNearCacheTTL
	}

	return &ProductCache{
		cache: New(store, "product", ttl, cfg.Logger),
		near:  expirable.NewLRU[string, domain.Product](size, nil, nearTTL),
	}
}

// Get ищет товар сначала в LRU, затем в Store.
func (c *ProductCache) Get(ctx context.Context, source, resourceID, externalID string) (domain.Product, bool) {
	key := ProductKey(source, resourceID, externalID)

	if p, ok := c.near.Get(key); ok {
		telemetry.CacheRequests.WithLabelValues(nearCacheMetricsLabel, "hit").Inc()
		return p, true
	}
	telemetry.CacheRequests.WithLabelValues(nearCacheMetricsLabel, "miss").Inc()

	var p domain.Product
	if !c.cache.Get(ctx, key, &p) {
		return domain.Product{}, false
	}

	c.near.Add(key, p)
	return p, true
}

// SetMany кэширует пачку товаров.
func (c *ProductCache) SetMany(ctx context.Context, source, resourceID string, products []domain.Product) error {
	values := make(map[string]any, len(products))
	for _, p := range products {
		key := ProductKey(source, resourceID, p.ExternalID)
		values[key] = p
		c.near.Add(key, p)
	}
	return c.cache.SetMany(ctx, values, 0)
}

// Invalidate очищает товары ресурса в Store и весь LRU.
func (c *ProductCache) Invalidate(ctx context.Context, source, resourceID string) (int, error) {
	c.near.Purge()
	return c.cache.Invalidate(ctx, ProductPattern(source, resourceID))
}

// NearLen возвращает число записей в LRU.
func (c *ProductCache) NearLen() int {
	return c.near.Len()
}
