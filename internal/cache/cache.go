package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/stocksync/internal/telemetry"
)

// defaultTTL применяется, если TTL не задан: бессрочных записей нет.
const defaultTTL = 5 * time.Minute

// Cache — JSON-обёртка над Store.
//
// Ошибки чтения трактуются как промах и только логируются:
// недоступный кэш не должен ломать синхронизацию.
type Cache struct {
	store     Store
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
}

// New создаёт Cache. namespace используется как метка метрик.
func New(store Store, namespace string, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Cache{
		store:     store,
		namespace: namespace,
		ttl:       ttl,
		logger:    logger.With("component", "cache", "namespace", namespace),
	}
}

// Store возвращает нижележащее хранилище.
func (c *Cache) Store() Store {
	return c.store
}

// TTL возвращает TTL по умолчанию.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get декодирует значение ключа в dest. Возвращает false при промахе.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("cache read failed", "key", key, "error", err)
		}
		c.miss()
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("cache decode failed", "key", key, "error", err)
		c.miss()
		return false
	}

	c.hit()
	return true
}

// Set кодирует value и пишет его с ttl (0 — TTL по умолчанию).
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.store.Set(ctx, key, data, c.effectiveTTL(ttl))
}

// SetMany пишет пачку значений одним вызовом Store.MSet.
func (c *Cache) SetMany(ctx context.Context, values map[string]any, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}

	ttl = c.effectiveTTL(ttl)
	entries := make([]Entry, 0, len(values))
	for key, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		entries = append(entries, Entry{Key: key, Value: data, TTL: ttl})
	}
	return c.store.MSet(ctx, entries)
}

// GetMany читает ключи пачкой и вызывает fn для каждого попадания.
func (c *Cache) GetMany(ctx context.Context, keys []string, fn func(key string, data []byte) error) error {
	if len(keys) == 0 {
		return nil
	}

	vals, err := c.store.MGet(ctx, keys...)
	if err != nil {
		c.logger.Warn("cache batch read failed", "keys", len(keys), "error", err)
		for range keys {
			c.miss()
		}
		return nil
	}

	for i, data := range vals {
		if data == nil {
			c.miss()
			continue
		}
		if err := fn(keys[i], data); err != nil {
			c.logger.Warn("cache decode failed", "key", keys[i], "error", err)
			c.miss()
			continue
		}
		c.hit()
	}
	return nil
}

// Delete удаляет ключи.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	return c.store.Del(ctx, keys...)
}

// Invalidate удаляет ключи по шаблону.
func (c *Cache) Invalidate(ctx context.Context, pattern string) (int, error) {
	n, err := c.store.DeletePattern(ctx, pattern)
	if err != nil {
		return n, err
	}
	c.logger.Debug("cache invalidated", "pattern", pattern, "deleted", n)
	return n, nil
}

func (c *Cache) effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.ttl
	}
	return ttl
}

func (c *Cache) hit() {
	telemetry.CacheRequests.WithLabelValues(c.namespace, "hit").Inc()
}

func (c *Cache) miss() {
	telemetry.CacheRequests.WithLabelValues(c.namespace, "miss").Inc()
}
