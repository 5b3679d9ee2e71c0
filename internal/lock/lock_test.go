package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/stocksync/internal/cache"
)

func TestLocker_ConcurrentAcquire(t *testing.T) {
	store := cache.NewMemoryStore()
	ctx := context.Background()

	const contenders = 16
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Отдельный Locker — отдельный процесс
			l := New(store, nil)
			_, ok, err := l.Acquire(ctx, "pos:store-1", time.Minute)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := winners.Load(); got != 1 {
		t.Errorf("expected exactly one winner, got %d", got)
	}
}

func TestLocker_ReleaseAllowsReacquire(t *testing.T) {
	store := cache.NewMemoryStore()
	ctx := context.Background()
	a := New(store, nil)
	b := New(store, nil)

	token, ok, _ := a.Acquire(ctx, "erp:main", time.Minute)
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}
	if _, ok, _ := b.Acquire(ctx, "erp:main", time.Minute); ok {
		t.Fatal("expected second acquire to fail")
	}

	if err := a.Release(ctx, "erp:main", token); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}

	if _, ok, _ := b.Acquire(ctx, "erp:main", time.Minute); !ok {
		t.Error("expected acquire after release to succeed")
	}
}

func TestLocker_ReleaseDoesNotStealReacquiredLock(t *testing.T) {
	now := time.Now()
	store := cache.NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	a := New(store, nil)
	b := New(store, nil)

	tokenA, _, _ := a.Acquire(ctx, "pos:store-1", time.Second)

	// Блокировка a истекла, b захватил её
	now = now.Add(2 * time.Second)
	if _, ok, _ := b.Acquire(ctx, "pos:store-1", time.Minute); !ok {
		t.Fatal("expected b to acquire expired lock")
	}

	if err := a.Release(ctx, "pos:store-1", tokenA); !errors.Is(err, ErrNotHeld) {
		t.Errorf("expected ErrNotHeld, got %v", err)
	}

	held, _ := b.Held(ctx, "pos:store-1")
	if !held {
		t.Error("lock of b must survive release by a")
	}
}

// Два задания одного процесса делят Locker: владелец определяется
// токеном, а не экземпляром.
func TestLocker_SameLockerReleaseDoesNotStealReacquiredLock(t *testing.T) {
	now := time.Now()
	store := cache.NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()
	l := New(store, nil)

	first, ok, _ := l.Acquire(ctx, "pos:store-1", time.Minute)
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}

	now = now.Add(2 * time.Minute)
	second, ok, _ := l.Acquire(ctx, "pos:store-1", time.Minute)
	if !ok {
		t.Fatal("expected acquire of expired lock to succeed")
	}
	if second == first {
		t.Fatal("expected a fresh token for the second holder")
	}

	if err := l.Release(ctx, "pos:store-1", first); !errors.Is(err, ErrNotHeld) {
		t.Errorf("expected ErrNotHeld, got %v", err)
	}

	held, _ := l.Held(ctx, "pos:store-1")
	if !held {
		t.Error("lock of the second holder must survive release by the first")
	}
	if _, ok, _ := l.Acquire(ctx, "pos:store-1", time.Minute); ok {
		t.Error("expected lock to remain busy")
	}

	if err := l.Release(ctx, "pos:store-1", second); err != nil {
		t.Errorf("unexpected release error: %v", err)
	}
}

func TestLocker_ReleaseUnknown(t *testing.T) {
	l := New(cache.NewMemoryStore(), nil)
	ctx := context.Background()

	if err := l.Release(ctx, "nope", ""); !errors.Is(err, ErrNotHeld) {
		t.Errorf("expected ErrNotHeld for empty token, got %v", err)
	}
	if err := l.Release(ctx, "nope", "bogus"); !errors.Is(err, ErrNotHeld) {
		t.Errorf("expected ErrNotHeld, got %v", err)
	}
}
