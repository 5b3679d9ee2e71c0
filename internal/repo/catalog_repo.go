package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/stocksync/internal/domain"
)

// Таблицы и ключи конфликтов.
const (
	TableProducts  = "products"
	TableStock     = "stock_levels"
	TableCustomers = "customers"
)

var (
	productKeys  = []string{"source", "resource_id", "external_id"}
	stockKeys    = []string{"source", "resource_id", "product_id"}
	customerKeys = []string{"source", "resource_id", "external_id"}
)

// UpsertProducts пишет каталог ресурса.
func (s *Store) UpsertProducts(ctx context.Context, source domain.Source, resourceID string, products []domain.Product, batchSize int) (UpsertResult, error) {
	now := time.Now().UTC()
	rows := make([]Row, len(products))
	for i, p := range products {
		rows[i] = Row{
			"source":      string(source),
			"resource_id": resourceID,
			"external_id": p.ExternalID,
			"sku":         p.SKU,
			"name":        p.Name,
			"price":       p.Price,
			"category":    p.Category,
			"active":      p.Active,
			"min_stock":   p.MinStock,
			"updated_at":  nullTime(p.UpdatedAt),
			"synced_at":   now,
		}
	}
	return s.BatchUpsert(ctx, TableProducts, rows, productKeys, batchSize)
}

// UpsertStock пишет остатки ресурса. Записи без данных не пишутся.
func (s *Store) UpsertStock(ctx context.Context, source domain.Source, resourceID string, records []domain.StockRecord, batchSize int) (UpsertResult, error) {
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		if r.Status == domain.StockStatusNoData {
			continue
		}
		syncedAt := r.SyncedAt
		if syncedAt.IsZero() {
			syncedAt = time.Now().UTC()
		}
		rows = append(rows, Row{
			"source":           string(source),
			"resource_id":      resourceID,
			"product_id":       r.ProductID,
			"quantity":         r.Quantity,
			"minimum_quantity": r.MinimumQuantity,
			"on_order":         r.OnOrder,
			"received":         r.Received,
			"status":           string(r.Status),
			"synced_at":        syncedAt,
		})
	}
	return s.BatchUpsert(ctx, TableStock, rows, stockKeys, batchSize)
}

// UpsertCustomers пишет клиентов ресурса.
func (s *Store) UpsertCustomers(ctx context.Context, source domain.Source, resourceID string, customers []domain.Customer, batchSize int) (UpsertResult, error) {
	now := time.Now().UTC()
	rows := make([]Row, len(customers))
	for i, c := range customers {
		rows[i] = Row{
			"source":      string(source),
			"resource_id": resourceID,
			"external_id": c.ExternalID,
			"name":        c.Name,
			"email":       c.Email,
			"phone":       c.Phone,
			"updated_at":  nullTime(c.UpdatedAt),
			"synced_at":   now,
		}
	}
	return s.BatchUpsert(ctx, TableCustomers, rows, customerKeys, batchSize)
}

// ListProductRefs возвращает активные товары ресурса.
func (s *Store) ListProductRefs(ctx context.Context, source domain.Source, resourceID string) ([]domain.ProductRef, error) {
	query := `
		SELECT external_id, sku, name, min_stock
		FROM products
		WHERE source = $1 AND resource_id = $2 AND active
		ORDER BY external_id
	`
	rows, err := s.pool.Query(ctx, query, string(source), resourceID)
	if err != nil {
		return nil, fmt.Errorf("list product refs: %w", err)
	}
	defer rows.Close()

	var refs []domain.ProductRef
	for rows.Next() {
		var ref domain.ProductRef
		if err := rows.Scan(&ref.ExternalID, &ref.SKU, &ref.Name, &ref.MinStock); err != nil {
			return nil, fmt.Errorf("scan product ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ListStock возвращает последние известные остатки ресурса.
func (s *Store) ListStock(ctx context.Context, source domain.Source, resourceID string) ([]domain.StockRecord, error) {
	query := `
		SELECT product_id, quantity, minimum_quantity, on_order, received, status, synced_at
		FROM stock_levels
		WHERE source = $1 AND resource_id = $2
		ORDER BY product_id
	`
	return s.queryStock(ctx, query, string(source), resourceID)
}

// ListLowStock возвращает остатки на уровне минимума или ниже.
func (s *Store) ListLowStock(ctx context.Context, source domain.Source, resourceID string) ([]domain.StockRecord, error) {
	query := `
		SELECT product_id, quantity, minimum_quantity, on_order, received, status, synced_at
		FROM stock_levels
		WHERE source = $1 AND resource_id = $2 AND status IN ('low_stock', 'out_of_stock')
		ORDER BY quantity, product_id
	`
	return s.queryStock(ctx, query, string(source), resourceID)
}

func (s *Store) queryStock(ctx context.Context, query string, args ...any) ([]domain.StockRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	defer rows.Close()

	var records []domain.StockRecord
	for rows.Next() {
		var (
			r      domain.StockRecord
			status string
		)
		if err := rows.Scan(&r.ProductID, &r.Quantity, &r.MinimumQuantity, &r.OnOrder, &r.Received, &status, &r.SyncedAt); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		r.Status = domain.StockStatus(status)
		records = append(records, r)
	}
	return records, rows.Err()
}

// nullTime возвращает nil для нулевого времени.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
