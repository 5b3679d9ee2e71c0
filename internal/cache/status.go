package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/stocksync/internal/domain"
)

const defaultStatusTTL = 30 * time.Second

// SyncStatusCache — короткоживущая копия SyncStatus для читателей статуса.
type SyncStatusCache struct {
	cache *Cache
}

// NewSyncStatusCache создаёт SyncStatusCache. ttl 0 — 30s.
func NewSyncStatusCache(store Store, ttl time.Duration, logger *slog.Logger) *SyncStatusCache {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &SyncStatusCache{cache: New(store, "sync_status", ttl, logger)}
}

func (c *SyncStatusCache) Get(ctx context.Context, source, resourceID string) (*domain.SyncStatus, bool) {
	var st domain.SyncStatus
	if !c.cache.Get(ctx, SyncStatusKey(source, resourceID), &st) {
		return nil, false
	}
	return &st, true
}

func (c *SyncStatusCache) Set(ctx context.Context, st *domain.SyncStatus) error {
	return c.cache.Set(ctx, SyncStatusKey(string(st.Source), st.ResourceID), st, 0)
}

func (c *SyncStatusCache) Delete(ctx context.Context, source, resourceID string) error {
	return c.cache.Delete(ctx, SyncStatusKey(source, resourceID))
}
