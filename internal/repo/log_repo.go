package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/stocksync/internal/domain"
)

// AppendIntegrationLog добавляет запись в журнал интеграций.
func (s *Store) AppendIntegrationLog(ctx context.Context, entry *domain.IntegrationLog) error {
	var details []byte
	if len(entry.Details) > 0 {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO integration_logs (source, resource_id, entity_type, status, details, error, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, query,
		string(entry.Source),
		entry.ResourceID,
		entry.EntityType,
		string(entry.Status),
		details,
		nullString(entry.Error),
		entry.Duration.Milliseconds(),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert integration log: %w", err)
	}
	return nil
}

// GetLastSyncTimestamp возвращает время последней успешной синхронизации
// сущности entityType источника. Пустой resourceID — по всем ресурсам.
// Возвращает ErrNotFound, если успешных синхронизаций не было.
func (s *Store) GetLastSyncTimestamp(ctx context.Context, source domain.Source, resourceID, entityType string) (time.Time, error) {
	query := `
		SELECT created_at
		FROM integration_logs
		WHERE source = $1
		  AND ($2 = '' OR resource_id = $2)
		  AND entity_type = $3
		  AND status = 'success'
		ORDER BY created_at DESC
		LIMIT 1
	`
	var ts time.Time
	err := s.pool.QueryRow(ctx, query, string(source), resourceID, entityType).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get last sync timestamp: %w", err)
	}
	return ts, nil
}
