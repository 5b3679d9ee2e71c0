package domain

import "time"

// StockRecord — остаток товара после трансформации, до upsert'а.
type StockRecord struct {
	ProductID       string      `json:"product_id"`
	Quantity        int         `json:"quantity"`
	MinimumQuantity int         `json:"minimum_quantity"`
	OnOrder         int         `json:"on_order"`
	Received        int         `json:"received"`
	Status          StockStatus `json:"status"`
	SyncedAt        time.Time   `json:"synced_at"`
}

// StockLookup — результат запроса остатка во внешней системе.
//
// Found=false означает "данных нет" (404 у upstream) и не является ошибкой.
type StockLookup struct {
	ProductID string
	Record    StockRecord
	Found     bool
}

// ClassifyStock вычисляет статус остатка.
func ClassifyStock(quantity, minimum int) StockStatus {
	switch {
	case quantity <= 0:
		return StockStatusOutOfStock
	case quantity <= minimum:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

// Classify заполняет Status по количеству и минимуму.
func (r *StockRecord) Classify() StockStatus {
	r.Status = ClassifyStock(r.Quantity, r.MinimumQuantity)
	return r.Status
}

// IsLow возвращает true, если остаток на уровне минимума или ниже.
func (r *StockRecord) IsLow() bool {
	return r.Status != StockStatusNoData && r.Quantity <= r.MinimumQuantity
}

// IsZero возвращает true для нулевого (или отрицательного) остатка.
func (r *StockRecord) IsZero() bool {
	return r.Status != StockStatusNoData && r.Quantity <= 0
}

// NoDataRecord — запись для товара, по которому upstream не вернул остаток.
func NoDataRecord(productID string, at time.Time) StockRecord {
	return StockRecord{
		ProductID: productID,
		Status:    StockStatusNoData,
		SyncedAt:  at,
	}
}
