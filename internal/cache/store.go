package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss возвращается Store.Get, если ключ отсутствует или истёк.
var ErrMiss = errors.New("cache miss")

// Entry — запись для пакетной записи.
type Entry struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// Store — хранилище ключ/значение с TTL.
//
// Атомарность гарантируется только в пределах одного ключа.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX записывает значение, только если ключа нет.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)

	// TTL возвращает оставшееся время жизни. ErrMiss, если ключа нет.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// DeletePattern удаляет ключи по glob-шаблону и возвращает их число.
	DeletePattern(ctx context.Context, pattern string) (int, error)

	// MGet возвращает значения в порядке ключей; nil для отсутствующих.
	MGet(ctx context.Context, keys ...string) ([][]byte, error)

	// MSet записывает пачку. Ошибка отдельных записей не отменяет остальные.
	MSet(ctx context.Context, entries []Entry) error

	// CompareAndDelete удаляет ключ, только если его значение равно value.
	CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error)

	Ping(ctx context.Context) error
}
