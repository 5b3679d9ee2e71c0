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

// posProductFields — поля каталога, запрашиваемые у POS.
const posProductFields = "id,code,description,sale_price,group_name,active,min_stock,updated_at"

// POSClient — клиент кассовой системы.
//
// Ресурс POS — магазин (store id).
type POSClient struct {
	base *Client
	now  func() time.Time
}

// NewPOSClient создаёт клиент POS поверх базового клиента.
func NewPOSClient(base *Client) *POSClient {
	return &POSClient{base: base, now: time.Now}
}

func (c *POSClient) Source() domain.Source { return domain.SourcePOS }

func (c *POSClient) Breaker() *breaker.Breaker { return c.base.Breaker() }

// WithRetryPolicy возвращает клиент с другой политикой повторов.
func (c *POSClient) WithRetryPolicy(p retry.Policy) *POSClient {
	return &POSClient{base: c.base.WithRetryPolicy(p), now: c.now}
}

// ListProducts возвращает страницу каталога магазина.
func (c *POSClient) ListProducts(ctx context.Context, resourceID string, page Page) ([]domain.Product, error) {
	q := page.query()
	q.Set("fields", posProductFields)

	var resp struct {
		Data  []posProduct `json:"data"`
		Total int          `json:"total"`
	}
	path := fmt.Sprintf("/api/v1/stores/%s/products", url.PathEscape(resourceID))
	if err := c.base.GetJSON(ctx, path, q, &resp); err != nil {
		return nil, fmt.Errorf("pos list products: %w", err)
	}

	products := make([]domain.Product, 0, len(resp.Data))
	for _, p := range resp.Data {
		products = append(products, p.toDomain())
	}
	return products, nil
}

// GetStock возвращает остаток одного товара. 404 — Found=false.
func (c *POSClient) GetStock(ctx context.Context, resourceID, productID string) (domain.StockLookup, error) {
	var s posStock
	path := fmt.Sprintf("/api/v1/stores/%s/stock/%s", url.PathEscape(resourceID), url.PathEscape(productID))
	if err := c.base.GetJSON(ctx, path, nil, &s); err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.StockLookup{ProductID: productID}, nil
		}
		return domain.StockLookup{}, fmt.Errorf("pos get stock: %w", err)
	}

	if s.ProductID == "" {
		s.ProductID = productID
	}
	return domain.StockLookup{ProductID: productID, Record: s.toDomain(c.now().UTC()), Found: true}, nil
}

// GetStockBatch возвращает остатки пачки товаров.
// since != nil — только изменённые после since.
func (c *POSClient) GetStockBatch(ctx context.Context, resourceID string, productIDs []string, since *time.Time) ([]domain.StockLookup, error) {
	body := map[string]any{"product_ids": productIDs}
	if since != nil {
		body["updated_since"] = since.UTC().Format(time.RFC3339)
	}

	var resp struct {
		Data []posStock `json:"data"`
	}
	path := fmt.Sprintf("/api/v1/stores/%s/stock/batch", url.PathEscape(resourceID))
	if err := c.base.PostJSON(ctx, path, body, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return lookupsFor(productIDs, nil), nil
		}
		return nil, fmt.Errorf("pos stock batch: %w", err)
	}

	at := c.now().UTC()
	records := make([]domain.StockRecord, 0, len(resp.Data))
	for _, s := range resp.Data {
		records = append(records, s.toDomain(at))
	}
	return lookupsFor(productIDs, records), nil
}

// ListCustomers не поддерживается POS.
func (c *POSClient) ListCustomers(context.Context, string, Page) ([]domain.Customer, error) {
	return nil, fmt.Errorf("pos customers: %w", ErrUnsupported)
}

// Health проверяет доступность POS.
func (c *POSClient) Health(ctx context.Context) error {
	return c.base.Probe(ctx, "/api/v1/health")
}
