package repo

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store — центральное хранилище.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore создаёт Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pool:   pool,
		logger: logger.With("component", "repo"),
	}
}

// Ping проверяет доступность БД.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
