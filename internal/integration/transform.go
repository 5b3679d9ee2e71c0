package integration

import (
	"math"
	"time"

	"github.com/shaiso/stocksync/internal/domain"
)

// posProduct — товар в формате POS API.
type posProduct struct {
	ID          string  `json:"id"`
	Code        string  `json:"code"`
	Description string  `json:"description"`
	SalePrice   float64 `json:"sale_price"`
	GroupName   string  `json:"group_name"`
	Active      bool    `json:"active"`
	MinStock    float64 `json:"min_stock"`
	UpdatedAt   string  `json:"updated_at"`
}

// posStock — остаток в формате POS API.
type posStock struct {
	ProductID   string  `json:"product_id"`
	QtyOnHand   float64 `json:"qty_on_hand"`
	MinQty      float64 `json:"min_qty"`
	QtyOnOrder  float64 `json:"qty_on_order"`
	QtyReceived float64 `json:"qty_received"`
}

// erpItem — номенклатура в формате ERP API.
type erpItem struct {
	ItemNo       string  `json:"item_no"`
	SKU          string  `json:"sku"`
	Name         string  `json:"name"`
	UnitPrice    float64 `json:"unit_price"`
	Category     string  `json:"category"`
	Blocked      bool    `json:"blocked"`
	ReorderPoint float64 `json:"reorder_point"`
	LastModified string  `json:"last_modified"`
}

// erpStock — остаток в формате ERP API.
type erpStock struct {
	ItemNo          string  `json:"item_no"`
	Inventory       float64 `json:"inventory"`
	SafetyStock     float64 `json:"safety_stock"`
	QtyOnPurchOrder float64 `json:"qty_on_purch_order"`
	QtyReceived     float64 `json:"qty_received"`
}

// erpCustomer — клиент в формате ERP API.
type erpCustomer struct {
	No           string `json:"no"`
	Name         string `json:"name"`
	Email        string `json:"e_mail"`
	PhoneNo      string `json:"phone_no"`
	LastModified string `json:"last_modified"`
}

func (p posProduct) toDomain() domain.Product {
	return domain.Product{
		ExternalID: p.ID,
		SKU:        p.Code,
		Name:       p.Description,
		Price:      p.SalePrice,
		Category:   p.GroupName,
		Active:     p.Active,
		MinStock:   quantity(p.MinStock),
		UpdatedAt:  parseTime(p.UpdatedAt),
	}
}

func (s posStock) toDomain(at time.Time) domain.StockRecord {
	rec := domain.StockRecord{
		ProductID:       s.ProductID,
		Quantity:        quantity(s.QtyOnHand),
		MinimumQuantity: quantity(s.MinQty),
		OnOrder:         quantity(s.QtyOnOrder),
		Received:        quantity(s.QtyReceived),
		SyncedAt:        at,
	}
	rec.Classify()
	return rec
}

func (i erpItem) toDomain() domain.Product {
	return domain.Product{
		ExternalID: i.ItemNo,
		SKU:        i.SKU,
		Name:       i.Name,
		Price:      i.UnitPrice,
		Category:   i.Category,
		Active:     !i.Blocked,
		MinStock:   quantity(i.ReorderPoint),
		UpdatedAt:  parseTime(i.LastModified),
	}
}

func (s erpStock) toDomain(at time.Time) domain.StockRecord {
	rec := domain.StockRecord{
		ProductID:       s.ItemNo,
		Quantity:        quantity(s.Inventory),
		MinimumQuantity: quantity(s.SafetyStock),
		OnOrder:         quantity(s.QtyOnPurchOrder),
		Received:        quantity(s.QtyReceived),
		SyncedAt:        at,
	}
	rec.Classify()
	return rec
}

func (c erpCustomer) toDomain() domain.Customer {
	return domain.Customer{
		ExternalID: c.No,
		Name:       c.Name,
		Email:      c.Email,
		Phone:      c.PhoneNo,
		UpdatedAt:  parseTime(c.LastModified),
	}
}

// quantity округляет дробное количество upstream до штук.
func quantity(v float64) int {
	return int(math.Round(v))
}

// parseTime разбирает RFC3339; нераспознанное значение — нулевое время.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// lookupsFor сопоставляет запрошенные id с полученными записями.
// Отсутствующие в ответе товары возвращаются с Found=false.
func lookupsFor(productIDs []string, records []domain.StockRecord) []domain.StockLookup {
	byID := make(map[string]domain.StockRecord, len(records))
	for _, rec := range records {
		byID[rec.ProductID] = rec
	}

	out := make([]domain.StockLookup, 0, len(productIDs))
	for _, id := range productIDs {
		rec, ok := byID[id]
		out = append(out, domain.StockLookup{ProductID: id, Record: rec, Found: ok})
	}
	return out
}
