package integration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/stocksync/internal/breaker"
	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/retry"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastRetry — политика без реальных задержек.
func fastRetry() *retry.Policy {
	return &retry.Policy{
		Name:         "test",
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		ShouldRetry:  retry.UpstreamShouldRetry,
	}
}

func setupUpstream(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(name, baseURL string, threshold int) *Client {
	return NewClient(Config{
		Name:      name,
		BaseURL:   baseURL,
		APIKey:    "secret",
		RateLimit: 1000,
		Breaker:   breaker.Config{FailureThreshold: threshold, Timeout: time.Hour},
		Retry:     fastRetry(),
		Logger:    testLogger(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Doer) Doer {
			return func(ctx context.Context, req *Request) (*Response, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	d := Chain(func(context.Context, *Request) (*Response, error) {
		order = append(order, "transport")
		return &Response{StatusCode: 200}, nil
	}, mw("ratelimit"), mw("retry"), mw("breaker"))

	d(context.Background(), &Request{})

	want := []string{"ratelimit", "retry", "breaker", "transport"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

func TestPOSClient_GetStock(t *testing.T) {
	server := setupUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/api/v1/stores/s1/stock/p1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, posStock{ProductID: "p1", QtyOnHand: 5, MinQty: 10, QtyOnOrder: 2.4})
	})

	c := NewPOSClient(newTestClient("pos", server.URL, 5))

	got, err := c.GetStock(context.Background(), "s1", "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Found {
		t.Fatal("expected Found=true")
	}
	if got.Record.Quantity != 5 || got.Record.MinimumQuantity != 10 || got.Record.OnOrder != 2 {
		t.Errorf("unexpected record: %+v", got.Record)
	}
	if got.Record.Status != domain.StockStatusLowStock {
		t.Errorf("expected low_stock, got %s", got.Record.Status)
	}
}

func TestPOSClient_GetStockNotFoundIsNoData(t *testing.T) {
	var calls atomic.Int32
	server := setupUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	client := newTestClient("pos", server.URL, 1)
	c := NewPOSClient(client)

	got, err := c.GetStock(context.Background(), "s1", "missing")
	if err != nil {
		t.Fatalf("404 must not be an error, got %v", err)
	}
	if got.Found {
		t.Error("expected Found=false")
	}
	if calls.Load() != 1 {
		t.Errorf("404 must not be retried, got %d calls", calls.Load())
	}
	if client.Breaker().State() != breaker.StateClosed {
		t.Errorf("404 must not trip the breaker, got %s", client.Breaker().State())
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := setupUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{"data": []posProduct{{ID: "1", Code: "A"}}})
	})

	c := NewPOSClient(newTestClient("pos", server.URL, 10))

	products, err := c.ListProducts(context.Background(), "s1", Page{Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 1 || products[0].SKU != "A" {
		t.Errorf("unexpected products: %+v", products)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestClient_UnauthorizedNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := setupUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	c := NewERPClient(newTestClient("erp", server.URL, 5))

	_, err := c.ListProducts(context.Background(), "wh1", Page{Limit: 10})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected HTTPError 401, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestClient_BreakerOpensAndFailsFast(t *testing.T) {
	var calls atomic.Int32
	server := setupUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	// Порог 3 = ровно одна серия повторов
	client := newTestClient("erp", server.URL, 3)
	c := NewERPClient(client)

	_, err := c.GetStock(context.Background(), "wh1", "i1")
	if err == nil {
		t.Fatal("expected error")
	}
	if client.Breaker().State() != breaker.StateOpen {
		t.Fatalf("expected OPEN, got %s", client.Breaker().State())
	}

	before := calls.Load()
	_, err = c.GetStock(context.Background(), "wh1", "i1")
	if !errors.Is(err, breaker.ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
	if calls.Load() != before {
		t.Error("open circuit must not contact upstream")
	}
}

func TestERPClient_GetStockBatch(t *testing.T) {
	var body map[string]any
	server := setupUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/warehouses/wh1/stock/query" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, map[string]any{"results": []erpStock{
			{ItemNo: "i1", Inventory: 0, SafetyStock: 3},
			{ItemNo: "i2", Inventory: 40, SafetyStock: 3},
		}})
	})

	c := NewERPClient(newTestClient("erp", server.URL, 5))
	since := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	got, err := c.GetStockBatch(context.Background(), "wh1", []string{"i1", "i2", "i3"}, &since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if body["modified_since"] != "2026-03-01T10:00:00Z" {
		t.Errorf("expected modified_since, got %v", body["modified_since"])
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 lookups, got %d", len(got))
	}
	if !got[0].Found || got[0].Record.Status != domain.StockStatusOutOfStock {
		t.Errorf("i1: unexpected %+v", got[0])
	}
	if !got[1].Found || got[1].Record.Status != domain.StockStatusInStock {
		t.Errorf("i2: unexpected %+v", got[1])
	}
	if got[2].Found {
		t.Errorf("i3: expected no data, got %+v", got[2])
	}
}

func TestERPClient_ListCustomers(t *testing.T) {
	server := setupUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("company") != "acme" || q.Get("limit") != "50" || q.Get("offset") != "100" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		writeJSON(w, map[string]any{"customers": []erpCustomer{
			{No: "C1", Name: "Alice", Email: "a@example.com", LastModified: "2026-01-02T03:04:05Z"},
		}})
	})

	c := NewERPClient(newTestClient("erp", server.URL, 5))

	customers, err := c.ListCustomers(context.Background(), "acme", Page{Limit: 50, Offset: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(customers) != 1 || customers[0].ExternalID != "C1" || customers[0].Email != "a@example.com" {
		t.Errorf("unexpected customers: %+v", customers)
	}
	if customers[0].UpdatedAt.IsZero() {
		t.Error("expected parsed updated_at")
	}
}

func TestPOSClient_CustomersUnsupported(t *testing.T) {
	c := NewPOSClient(newTestClient("pos", "http://127.0.0.1:0", 5))
	if _, err := c.ListCustomers(context.Background(), "s1", Page{}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestClient_HealthBypassesBreaker(t *testing.T) {
	healthy := atomic.Bool{}
	server := setupUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/health" && healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	})

	client := newTestClient("pos", server.URL, 1)
	c := NewPOSClient(client)

	if err := c.Health(context.Background()); err == nil {
		t.Error("expected unhealthy")
	}

	c.GetStock(context.Background(), "s1", "p1")
	if client.Breaker().State() != breaker.StateOpen {
		t.Fatalf("expected OPEN, got %s", client.Breaker().State())
	}

	healthy.Store(true)
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("health must probe upstream directly, got %v", err)
	}
}
