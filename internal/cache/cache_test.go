package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/stocksync/internal/domain"
)

func TestCache_SetThenGet(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	c := New(NewMemoryStore().WithClock(clock.Now), "test", time.Minute, nil)

	type payload struct {
		Name string `json:"name"`
		Qty  int    `json:"qty"`
	}

	require.NoError(t, c.Set(ctx, "k", payload{Name: "widget", Qty: 3}, 0))

	var got payload
	require.True(t, c.Get(ctx, "k", &got))
	assert.Equal(t, payload{Name: "widget", Qty: 3}, got)

	clock.Advance(time.Minute)
	assert.False(t, c.Get(ctx, "k", &got), "entry must expire after default TTL")
}

func TestCache_DecodeErrorIsMiss(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := New(store, "test", time.Minute, nil)

	store.Set(ctx, "k", []byte("not json"), time.Minute)

	var v map[string]any
	assert.False(t, c.Get(ctx, "k", &v))
}

func TestStockCache_CriticalShadow(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := NewMemoryStore().WithClock(clock.Now)
	sc := NewStockCache(store, StockConfig{
		TTL:               5 * time.Minute,
		CriticalTTL:       time.Minute,
		CriticalThreshold: 5,
	})

	records := []domain.StockRecord{
		{ProductID: "p1", Quantity: 100, MinimumQuantity: 10, Status: domain.StockStatusInStock},
		{ProductID: "p2", Quantity: 0, MinimumQuantity: 10, Status: domain.StockStatusOutOfStock},
	}
	require.NoError(t, sc.SetMany(ctx, "pos", "store-1", records))

	ok, _ := store.Exists(ctx, CriticalStockKey("pos", "store-1", "p1"))
	assert.False(t, ok, "healthy stock must not be mirrored")
	ok, _ = store.Exists(ctx, CriticalStockKey("pos", "store-1", "p2"))
	assert.True(t, ok, "zero stock must be mirrored")

	rec, found := sc.GetCritical(ctx, "pos", "store-1", "p2")
	require.True(t, found)
	assert.Equal(t, 0, rec.Quantity)

	// Shadow истекает раньше, чтение переходит на обычный namespace
	clock.Advance(time.Minute)
	ok, _ = store.Exists(ctx, CriticalStockKey("pos", "store-1", "p2"))
	assert.False(t, ok)

	rec, found = sc.GetCritical(ctx, "pos", "store-1", "p2")
	require.True(t, found)
	assert.Equal(t, "p2", rec.ProductID)

	got := sc.GetMany(ctx, "pos", "store-1", []string{"p1", "p2", "p3"})
	assert.Len(t, got, 2)

	n, err := sc.Invalidate(ctx, "pos", "store-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, store.Len())
}

func TestProductCache_NearCache(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	pc := NewProductCache(store, ProductConfig{NearCacheSize: 10})

	products := []domain.Product{
		{ExternalID: "e1", SKU: "SKU-1", Name: "Widget"},
		{ExternalID: "e2", SKU: "SKU-2", Name: "Gadget"},
	}
	require.NoError(t, pc.SetMany(ctx, "erp", "main", products))
	assert.Equal(t, 2, pc.NearLen())

	// Удаляем из Store — LRU всё ещё отвечает
	store.Del(ctx, ProductKey("erp", "main", "e1"))
	p, ok := pc.Get(ctx, "erp", "main", "e1")
	require.True(t, ok)
	assert.Equal(t, "Widget", p.Name)

	// После Invalidate пусто везде
	_, err := pc.Invalidate(ctx, "erp", "main")
	require.NoError(t, err)
	assert.Equal(t, 0, pc.NearLen())

	_, ok = pc.Get(ctx, "erp", "main", "e2")
	assert.False(t, ok)
}

func TestProductCache_FillsNearCacheFromStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	writer := NewProductCache(store, ProductConfig{})
	require.NoError(t, writer.SetMany(ctx, "pos", "s1", []domain.Product{{ExternalID: "x", Name: "X"}}))

	reader := NewProductCache(store, ProductConfig{})
	assert.Equal(t, 0, reader.NearLen())

	p, ok := reader.Get(ctx, "pos", "s1", "x")
	require.True(t, ok)
	assert.Equal(t, "X", p.Name)
	assert.Equal(t, 1, reader.NearLen())
}

func TestSyncStatusCache(t *testing.T) {
	ctx := context.Background()
	sc := NewSyncStatusCache(NewMemoryStore(), 0, nil)

	st := domain.NewSyncStatus(domain.SourcePOS, "store-1")
	st.MarkSyncing()
	require.NoError(t, sc.Set(ctx, st))

	got, ok := sc.Get(ctx, "pos", "store-1")
	require.True(t, ok)
	assert.Equal(t, domain.SyncStateSyncing, got.Status)

	require.NoError(t, sc.Delete(ctx, "pos", "store-1"))
	_, ok = sc.Get(ctx, "pos", "store-1")
	assert.False(t, ok)
}
