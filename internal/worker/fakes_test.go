package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/integration"
	"github.com/shaiso/stocksync/internal/queue"
	"github.com/shaiso/stocksync/internal/repo"
)

// fakeUpstream отдаёт каталог и остатки из памяти.
type fakeUpstream struct {
	source    domain.Source
	products  []domain.Product
	customers []domain.Customer

	mu        sync.Mutex
	stock     map[string]int
	minimums  map[string]int
	stockErr  error
	listErr   error
	pages     []integration.Page
	stockReqs [][]string
	since     []*time.Time
}

func newFakeUpstream(source domain.Source) *fakeUpstream {
	return &fakeUpstream{
		source:   source,
		stock:    make(map[string]int),
		minimums: make(map[string]int),
	}
}

func (f *fakeUpstream) Source() domain.Source { return f.source }

func (f *fakeUpstream) ListProducts(_ context.Context, _ string, page integration.Page) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pages = append(f.pages, page)
	if f.listErr != nil {
		return nil, f.listErr
	}
	if page.Offset >= len(f.products) {
		return nil, nil
	}
	end := min(page.Offset+page.Limit, len(f.products))
	return f.products[page.Offset:end], nil
}

func (f *fakeUpstream) GetStockBatch(_ context.Context, _ string, ids []string, since *time.Time) ([]domain.StockLookup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stockReqs = append(f.stockReqs, append([]string(nil), ids...))
	f.since = append(f.since, since)
	if f.stockErr != nil {
		return nil, f.stockErr
	}

	out := make([]domain.StockLookup, len(ids))
	for i, id := range ids {
		qty, ok := f.stock[id]
		if !ok {
			out[i] = domain.StockLookup{ProductID: id}
			continue
		}
		out[i] = domain.StockLookup{
			ProductID: id,
			Found:     true,
			Record: domain.StockRecord{
				ProductID:       id,
				Quantity:        qty,
				MinimumQuantity: f.minimums[id],
			},
		}
	}
	return out, nil
}

func (f *fakeUpstream) ListCustomers(_ context.Context, _ string, page integration.Page) ([]domain.Customer, error) {
	if f.source == domain.SourcePOS {
		return nil, integration.ErrUnsupported
	}
	if page.Offset >= len(f.customers) {
		return nil, nil
	}
	end := min(page.Offset+page.Limit, len(f.customers))
	return f.customers[page.Offset:end], nil
}

func (f *fakeUpstream) setStock(id string, qty, minimum int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock[id] = qty
	f.minimums[id] = minimum
}

// fakeStore — Datastore в памяти.
type fakeStore struct {
	mu        sync.Mutex
	products  map[string]domain.Product
	stock     map[string]domain.StockRecord
	customers map[string]domain.Customer
	statuses  map[string]domain.SyncStatus
	logs      []domain.IntegrationLog
	saves     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products:  make(map[string]domain.Product),
		stock:     make(map[string]domain.StockRecord),
		customers: make(map[string]domain.Customer),
		statuses:  make(map[string]domain.SyncStatus),
	}
}

func (s *fakeStore) UpsertProducts(_ context.Context, _ domain.Source, _ string, products []domain.Product, _ int) (repo.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.products[p.ExternalID] = p
	}
	return repo.UpsertResult{SuccessCount: len(products)}, nil
}

func (s *fakeStore) UpsertStock(_ context.Context, _ domain.Source, _ string, records []domain.StockRecord, _ int) (repo.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range records {
		if r.Status == domain.StockStatusNoData {
			continue
		}
		s.stock[r.ProductID] = r
		n++
	}
	return repo.UpsertResult{SuccessCount: n}, nil
}

func (s *fakeStore) UpsertCustomers(_ context.Context, _ domain.Source, _ string, customers []domain.Customer, _ int) (repo.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range customers {
		s.customers[c.ExternalID] = c
	}
	return repo.UpsertResult{SuccessCount: len(customers)}, nil
}

func (s *fakeStore) ListProductRefs(context.Context, domain.Source, string) ([]domain.ProductRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make([]domain.ProductRef, 0, len(s.products))
	for _, p := range s.products {
		refs = append(refs, domain.ProductRef{ExternalID: p.ExternalID, SKU: p.SKU, Name: p.Name, MinStock: p.MinStock})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ExternalID < refs[j].ExternalID })
	return refs, nil
}

func (s *fakeStore) ListLowStock(context.Context, domain.Source, string) ([]domain.StockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StockRecord
	for _, r := range s.stock {
		if r.IsLow() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (s *fakeStore) GetLastSyncTimestamp(_ context.Context, source domain.Source, resourceID, entityType string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last time.Time
	for _, l := range s.logs {
		if l.Source == source && l.ResourceID == resourceID && l.EntityType == entityType &&
			l.Status == domain.LogStatusSuccess && l.CreatedAt.After(last) {
			last = l.CreatedAt
		}
	}
	if last.IsZero() {
		return time.Time{}, repo.ErrNotFound
	}
	return last, nil
}

func (s *fakeStore) AppendIntegrationLog(_ context.Context, entry *domain.IntegrationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *entry)
	return nil
}

func (s *fakeStore) GetSyncStatus(_ context.Context, source domain.Source, resourceID string) (*domain.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[domain.ResourceKey(source, resourceID)]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &st, nil
}

func (s *fakeStore) SaveSyncStatus(_ context.Context, st *domain.SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[domain.ResourceKey(st.Source, st.ResourceID)] = *st
	s.saves++
	return nil
}

func (s *fakeStore) status(source domain.Source, resourceID string) (domain.SyncStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[domain.ResourceKey(source, resourceID)]
	return st, ok
}

// fakeAlerter записывает алерты.
type fakeAlerter struct {
	mu     sync.Mutex
	alerts []*domain.Alert
	err    error
}

func (f *fakeAlerter) Send(_ context.Context, a *domain.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return f.err
}

func (f *fakeAlerter) bySeverity(s domain.Severity) []*domain.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Alert
	for _, a := range f.alerts {
		if a.Severity == s {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeAlerter) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = nil
}

// fakeSubmitter записывает поставленные задания.
type fakeSubmitter struct {
	mu   sync.Mutex
	jobs []*domain.SyncJob
}

func (f *fakeSubmitter) Submit(_ context.Context, job *domain.SyncJob) (*queue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return &queue.Job{ID: job.ID.String(), Queue: QueueFor(job.Type)}, nil
}

// inlineSubmitter выполняет задание сразу, как свободный consumer очереди.
type inlineSubmitter struct {
	worker  *Worker
	results []error
}

func (s *inlineSubmitter) Submit(ctx context.Context, job *domain.SyncJob) (*queue.Job, error) {
	s.results = append(s.results, s.worker.Process(ctx, job))
	return &queue.Job{ID: job.ID.String(), Queue: QueueFor(job.Type)}, nil
}
