package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shaiso/stocksync/internal/domain"
)

// Default configuration values.
const (
	defaultStockTTL          = 5 * time.Minute
	defaultCriticalTTL       = time.Minute
	defaultCriticalThreshold = 5
)

// StockConfig — конфигурация StockCache.
type StockConfig struct {
	// TTL — время жизни обычной записи (default: 5m).
	TTL time.Duration

	// CriticalTTL — время жизни записи в shadow namespace (default: 1m).
	CriticalTTL time.Duration

	// CriticalThreshold — остаток, начиная с которого запись
	// дублируется в shadow namespace (default: 5).
	CriticalThreshold int

	Logger *slog.Logger
}

// StockCache хранит остатки по (source, resource, product).
//
// Записи с остатком <= CriticalThreshold дублируются в критичный
// namespace с более коротким TTL: их читают чаще и свежесть важнее.
type StockCache struct {
	cache       *Cache
	criticalTTL time.Duration
	threshold   int
}

// NewStockCache создаёт StockCache.
func NewStockCache(store Store, cfg StockConfig) *StockCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultStockTTL
	}

	criticalTTL := cfg.CriticalTTL
	if criticalTTL <= 0 {
		criticalTTL = defaultCriticalTTL
	}

	threshold := cfg.CriticalThreshold
	if threshold <= 0 {
		threshold = defaultCriticalThreshold
	}

	return &StockCache{
		cache:       New(store, "stock", ttl, cfg.Logger),
		criticalTTL: criticalTTL,
		threshold:   threshold,
	}
}

// IsCritical сообщает, попадает ли запись в shadow namespace.
func (c *StockCache) IsCritical(rec domain.StockRecord) bool {
	return rec.Quantity <= c.threshold
}

// Set кэширует одну запись.
func (c *StockCache) Set(ctx context.Context, source, resourceID string, rec domain.StockRecord) error {
	return c.SetMany(ctx, source, resourceID, []domain.StockRecord{rec})
}

// SetMany кэширует пачку записей одним pipeline на namespace.
func (c *StockCache) SetMany(ctx context.Context, source, resourceID string, records []domain.StockRecord) error {
	if len(records) == 0 {
		return nil
	}

	regular := make(map[string]any, len(records))
	critical := make(map[string]any)
	for _, rec := range records {
		regular[StockKey(source, resourceID, rec.ProductID)] = rec
		if c.IsCritical(rec) {
			critical[CriticalStockKey(source, resourceID, rec.ProductID)] = rec
		}
	}

	if err := c.cache.SetMany(ctx, regular, 0); err != nil {
		return err
	}
	return c.cache.SetMany(ctx, critical, c.criticalTTL)
}

// Get читает запись из обычного namespace.
func (c *StockCache) Get(ctx context.Context, source, resourceID, productID string) (domain.StockRecord, bool) {
	var rec domain.StockRecord
	ok := c.cache.Get(ctx, StockKey(source, resourceID, productID), &rec)
	return rec, ok
}

// GetCritical читает сначала shadow namespace, затем обычный.
func (c *StockCache) GetCritical(ctx context.Context, source, resourceID, productID string) (domain.StockRecord, bool) {
	var rec domain.StockRecord
	if c.cache.Get(ctx, CriticalStockKey(source, resourceID, productID), &rec) {
		return rec, true
	}
	return c.Get(ctx, source, resourceID, productID)
}

// GetMany читает записи пачкой. Отсутствующие в результат не попадают.
func (c *StockCache) GetMany(ctx context.Context, source, resourceID string, productIDs []string) map[string]domain.StockRecord {
	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = StockKey(source, resourceID, id)
	}

	out := make(map[string]domain.StockRecord, len(productIDs))
	c.cache.GetMany(ctx, keys, func(_ string, data []byte) error {
		var rec domain.StockRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		out[rec.ProductID] = rec
		return nil
	})
	return out
}

// Invalidate очищает оба namespace ресурса.
func (c *StockCache) Invalidate(ctx context.Context, source, resourceID string) (int, error) {
	n, err := c.cache.Invalidate(ctx, StockPattern(source, resourceID))
	if err != nil {
		return n, err
	}
	m, err := c.cache.Invalidate(ctx, CriticalStockPattern(source, resourceID))
	return n + m, err
}
