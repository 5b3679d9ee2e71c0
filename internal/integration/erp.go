package integration

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/shaiso/stocksync/internal/breaker"
	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/retry"
)

// ERPClient — клиент ERP-системы.
//
// Ресурс ERP — склад (warehouse code); клиенты запрашиваются по компании,
// код компании совпадает с ресурсом.
type ERPClient struct {
	base *Client
	now  func() time.Time
}

// NewERPClient создаёт клиент ERP поверх базового клиента.
func NewERPClient(base *Client) *ERPClient {
	return &ERPClient{base: base, now: time.Now}
}

func (c *ERPClient) Source() domain.Source { return domain.SourceERP }

func (c *ERPClient) Breaker() *breaker.Breaker { return c.base.Breaker() }

// WithRetryPolicy возвращает клиент с другой политикой повторов.
func (c *ERPClient) WithRetryPolicy(p retry.Policy) *ERPClient {
	return &ERPClient{base: c.base.WithRetryPolicy(p), now: c.now}
}

// ListProducts возвращает страницу номенклатуры склада.
func (c *ERPClient) ListProducts(ctx context.Context, resourceID string, page Page) ([]domain.Product, error) {
	var resp struct {
		Items   []erpItem `json:"items"`
		HasMore bool      `json:"has_more"`
	}
	path := fmt.Sprintf("/api/warehouses/%s/items", url.PathEscape(resourceID))
	if err := c.base.GetJSON(ctx, path, page.query(), &resp); err != nil {
		return nil, fmt.Errorf("erp list items: %w", err)
	}

	products := make([]domain.Product, 0, len(resp.Items))
	for _, i := range resp.Items {
		products = append(products, i.toDomain())
	}
	return products, nil
}

// GetStock возвращает остаток одной позиции. 404 — Found=false.
func (c *ERPClient) GetStock(ctx context.Context, resourceID, productID string) (domain.StockLookup, error) {
	var s erpStock
	path := fmt.Sprintf("/api/warehouses/%s/items/%s/stock", url.PathEscape(resourceID), url.PathEscape(productID))
	if err := c.base.GetJSON(ctx, path, nil, &s); err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.StockLookup{ProductID: productID}, nil
		}
		return domain.StockLookup{}, fmt.Errorf("erp get stock: %w", err)
	}

	if s.ItemNo == "" {
		s.ItemNo = productID
	}
	return domain.StockLookup{ProductID: productID, Record: s.toDomain(c.now().UTC()), Found: true}, nil
}

// GetStockBatch возвращает остатки пачки позиций.
func (c *ERPClient) GetStockBatch(ctx context.Context, resourceID string, productIDs []string, since *time.Time) ([]domain.StockLookup, error) {
	body := map[string]any{"item_ids": productIDs}
	if since != nil {
		body["modified_since"] = since.UTC().Format(time.RFC3339)
	}

	var resp struct {
		Results []erpStock `json:"results"`
	}
	path := fmt.Sprintf("/api/warehouses/%s/stock/query", url.PathEscape(resourceID))
	if err := c.base.PostJSON(ctx, path, body, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return lookupsFor(productIDs, nil), nil
		}
		return nil, fmt.Errorf("erp stock query: %w", err)
	}

	at := c.now().UTC()
	records := make([]domain.StockRecord, 0, len(resp.Results))
	for _, s := range resp.Results {
		records = append(records, s.toDomain(at))
	}
	return lookupsFor(productIDs, records), nil
}

// ListCustomers возвращает страницу клиентов компании.
func (c *ERPClient) ListCustomers(ctx context.Context, resourceID string, page Page) ([]domain.Customer, error) {
	q := page.query()
	q.Set("company", resourceID)

	var resp struct {
		Customers []erpCustomer `json:"customers"`
	}
	if err := c.base.GetJSON(ctx, "/api/customers", q, &resp); err != nil {
		return nil, fmt.Errorf("erp list customers: %w", err)
	}

	customers := make([]domain.Customer, 0, len(resp.Customers))
	for _, cu := range resp.Customers {
		customers = append(customers, cu.toDomain())
	}
	return customers, nil
}

// Health проверяет доступность ERP.
func (c *ERPClient) Health(ctx context.Context) error {
	return c.base.Probe(ctx, "/api/status")
}
