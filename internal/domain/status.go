package domain

// SyncState — состояние синхронизации ресурса.
//
// Жизненный цикл:
//
//	IDLE → SYNCING → COMPLETED
//	               ↘ ERROR (следующий job снова переводит в SYNCING)
type SyncState string

const (
	// SyncStateIdle — ресурс ещё не синхронизировался.
	SyncStateIdle SyncState = "idle"

	// SyncStateSyncing — синхронизация выполняется воркером, который держит lock.
	SyncStateSyncing SyncState = "syncing"

	// SyncStateError — последняя синхронизация завершилась ошибкой.
	SyncStateError SyncState = "error"

	// SyncStateCompleted — последняя синхронизация успешна.
	SyncStateCompleted SyncState = "completed"
)

// IsTerminal возвращает true, если синхронизация не выполняется.
func (s SyncState) IsTerminal() bool {
	switch s {
	case SyncStateError, SyncStateCompleted:
		return true
	default:
		return false
	}
}

// StockStatus — производный статус остатка после трансформации.
type StockStatus string

const (
	StockStatusInStock    StockStatus = "in_stock"
	StockStatusLowStock   StockStatus = "low_stock"
	StockStatusOutOfStock StockStatus = "out_of_stock"
	StockStatusNoData     StockStatus = "no_data"
)

// LogStatus — статус записи в журнале интеграций.
type LogStatus string

const (
	LogStatusSuccess LogStatus = "success"
	LogStatusError   LogStatus = "error"
	LogStatusPartial LogStatus = "partial"
)
