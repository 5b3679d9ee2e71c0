package domain

import "time"

// SyncStatus — состояние синхронизации одного ресурса внешней системы.
//
// Изменяется только воркером, который держит lock ресурса.
// Читается health/status endpoint'ами и мониторингом.
type SyncStatus struct {
	Source     Source    `json:"source"`
	ResourceID string    `json:"resource_id"`
	Status     SyncState `json:"status"`

	LastProductSync *time.Time `json:"last_product_sync,omitempty"`
	LastStockSync   *time.Time `json:"last_stock_sync,omitempty"`

	ProductsSynced int `json:"products_synced"`
	StockSynced    int `json:"stock_synced"`
	ErrorCount     int `json:"error_count"`

	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSyncStatus возвращает начальное состояние ресурса.
func NewSyncStatus(source Source, resourceID string) *SyncStatus {
	return &SyncStatus{
		Source:     source,
		ResourceID: resourceID,
		Status:     SyncStateIdle,
		UpdatedAt:  time.Now().UTC(),
	}
}

// MarkSyncing переводит ресурс в SYNCING.
func (s *SyncStatus) MarkSyncing() {
	s.Status = SyncStateSyncing
	s.UpdatedAt = time.Now().UTC()
}

// MarkCompleted фиксирует успешную синхронизацию.
func (s *SyncStatus) MarkCompleted() {
	s.Status = SyncStateCompleted
	s.LastError = ""
	s.UpdatedAt = time.Now().UTC()
}

// MarkError фиксирует ошибку и увеличивает счётчик ошибок.
func (s *SyncStatus) MarkError(err error) {
	s.Status = SyncStateError
	s.ErrorCount++
	if err != nil {
		s.LastError = err.Error()
	}
	s.UpdatedAt = time.Now().UTC()
}

// RecordProducts обновляет прогресс синхронизации каталога.
func (s *SyncStatus) RecordProducts(n int, at time.Time) {
	s.ProductsSynced += n
	s.LastProductSync = &at
}

// RecordStock обновляет прогресс синхронизации остатков.
func (s *SyncStatus) RecordStock(n int, at time.Time) {
	s.StockSynced += n
	s.LastStockSync = &at
}

// RecentlyCompleted проверяет, что последняя синхронизация остатков успешна
// и моложе window.
func (s *SyncStatus) RecentlyCompleted(now time.Time, window time.Duration) bool {
	if s.Status != SyncStateCompleted || s.LastStockSync == nil || window <= 0 {
		return false
	}
	return now.Sub(*s.LastStockSync) < window
}
