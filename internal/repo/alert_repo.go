package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaiso/stocksync/internal/domain"
)

// AlertFilter — параметры выборки журнала алертов.
type AlertFilter struct {
	Type     string
	Severity domain.Severity
	Limit    int
	Offset   int
}

// InsertAlert сохраняет алерт.
func (s *Store) InsertAlert(ctx context.Context, a *domain.Alert) error {
	var data []byte
	if len(a.Data) > 0 {
		var err error
		data, err = json.Marshal(a.Data)
		if err != nil {
			return fmt.Errorf("marshal alert data: %w", err)
		}
	}

	query := `
		INSERT INTO alerts (id, type, severity, title, message, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query,
		a.ID,
		a.Type,
		string(a.Severity),
		a.Title,
		a.Message,
		data,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListAlerts возвращает алерты от новых к старым.
func (s *Store) ListAlerts(ctx context.Context, filter AlertFilter) ([]domain.Alert, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `
		SELECT id, type, severity, title, message, data, created_at
		FROM alerts
		WHERE ($1 = '' OR type = $1)
		  AND ($2 = '' OR severity = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := s.pool.Query(ctx, query, filter.Type, string(filter.Severity), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var (
			a        domain.Alert
			severity string
			data     []byte
		)
		if err := rows.Scan(&a.ID, &a.Type, &severity, &a.Title, &a.Message, &data, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Severity = domain.Severity(severity)
		if data != nil {
			if err := json.Unmarshal(data, &a.Data); err != nil {
				return nil, fmt.Errorf("unmarshal alert data: %w", err)
			}
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
