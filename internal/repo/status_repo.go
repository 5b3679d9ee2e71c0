package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/stocksync/internal/domain"
)

const syncStatusColumns = `source, resource_id, status, last_product_sync, last_stock_sync,
		       products_synced, stock_synced, error_count, last_error, updated_at`

// GetSyncStatus возвращает статус ресурса или ErrNotFound.
func (s *Store) GetSyncStatus(ctx context.Context, source domain.Source, resourceID string) (*domain.SyncStatus, error) {
	query := `
		SELECT ` + syncStatusColumns + `
		FROM sync_status
		WHERE source = $1 AND resource_id = $2
	`
	st, err := scanSyncStatus(s.pool.QueryRow(ctx, query, string(source), resourceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// SaveSyncStatus создаёт или обновляет статус ресурса.
func (s *Store) SaveSyncStatus(ctx context.Context, st *domain.SyncStatus) error {
	query := `
		INSERT INTO sync_status (source, resource_id, status, last_product_sync, last_stock_sync,
		                         products_synced, stock_synced, error_count, last_error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (source, resource_id) DO UPDATE SET
			status = EXCLUDED.status,
			last_product_sync = EXCLUDED.last_product_sync,
			last_stock_sync = EXCLUDED.last_stock_sync,
			products_synced = EXCLUDED.products_synced,
			stock_synced = EXCLUDED.stock_synced,
			error_count = EXCLUDED.error_count,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.pool.Exec(ctx, query,
		string(st.Source),
		st.ResourceID,
		string(st.Status),
		st.LastProductSync,
		st.LastStockSync,
		st.ProductsSynced,
		st.StockSynced,
		st.ErrorCount,
		nullString(st.LastError),
		st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save sync status: %w", err)
	}
	return nil
}

// ListSyncStatuses возвращает статусы всех ресурсов.
func (s *Store) ListSyncStatuses(ctx context.Context) ([]domain.SyncStatus, error) {
	query := `
		SELECT ` + syncStatusColumns + `
		FROM sync_status
		ORDER BY source, resource_id
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sync statuses: %w", err)
	}
	defer rows.Close()

	var out []domain.SyncStatus
	for rows.Next() {
		st, err := scanSyncStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// ResetStaleErrors обнуляет счётчики ошибок ресурсов, не обновлявшихся
// с quietSince. Ресурсы в ERROR переводятся в IDLE.
func (s *Store) ResetStaleErrors(ctx context.Context, quietSince time.Time) (int64, error) {
	query := `
		UPDATE sync_status
		SET error_count = 0,
		    last_error = NULL,
		    status = CASE WHEN status = 'error' THEN 'idle' ELSE status END,
		    updated_at = now()
		WHERE error_count > 0 AND updated_at < $1
	`
	result, err := s.pool.Exec(ctx, query, quietSince)
	if err != nil {
		return 0, fmt.Errorf("reset stale errors: %w", err)
	}
	return result.RowsAffected(), nil
}

func scanSyncStatus(row pgx.Row) (*domain.SyncStatus, error) {
	var (
		st             domain.SyncStatus
		source, status string
		lastError      *string
	)
	err := row.Scan(
		&source,
		&st.ResourceID,
		&status,
		&st.LastProductSync,
		&st.LastStockSync,
		&st.ProductsSynced,
		&st.StockSynced,
		&st.ErrorCount,
		&lastError,
		&st.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan sync status: %w", err)
	}

	st.Source = domain.Source(source)
	st.Status = domain.SyncState(status)
	if lastError != nil {
		st.LastError = *lastError
	}
	return &st, nil
}
