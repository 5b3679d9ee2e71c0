// Package lock реализует распределённую блокировку ресурса поверх cache.Store.
//
// Захват — SetNX с TTL, значение ключа — случайный токен владельца.
// Освобождение — compare-and-delete по токену: владелец не удалит блокировку,
// которую после истечения TTL захватил кто-то другой.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/stocksync/internal/cache"
)

// defaultTTL — TTL блокировки, если не задан.
const defaultTTL = 10 * time.Minute

// ErrNotHeld возвращается Release, если блокировка уже не принадлежит владельцу токена.
var ErrNotHeld = errors.New("lock not held")

// Locker выдаёт блокировки ресурсов.
//
// Locker не хранит состояния владельцев: токен возвращается из Acquire
// и передаётся в Release. Один Locker безопасно разделяют задачи процесса.
type Locker struct {
	store  cache.Store
	logger *slog.Logger
}

// New создаёт Locker.
func New(store cache.Store, logger *slog.Logger) *Locker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{
		store:  store,
		logger: logger.With("component", "lock"),
	}
}

// Acquire пытается захватить блокировку key на ttl.
// Возвращает токен владельца; ok=false без ошибки, если блокировка занята.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	token = uuid.NewString()
	ok, err = l.store.SetNX(ctx, cache.LockKey(key), []byte(token), ttl)
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		l.logger.Debug("lock busy", "key", key)
		return "", false, nil
	}

	l.logger.Debug("lock acquired", "key", key, "ttl", ttl)
	return token, true, nil
}

// Release освобождает блокировку, если она всё ещё принадлежит владельцу token.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if token == "" {
		return ErrNotHeld
	}

	deleted, err := l.store.CompareAndDelete(ctx, cache.LockKey(key), []byte(token))
	if err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	if !deleted {
		l.logger.Warn("lock expired before release", "key", key)
		return ErrNotHeld
	}

	l.logger.Debug("lock released", "key", key)
	return nil
}

// Held сообщает, занята ли блокировка кем-либо.
func (l *Locker) Held(ctx context.Context, key string) (bool, error) {
	return l.store.Exists(ctx, cache.LockKey(key))
}
