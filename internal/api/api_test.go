package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shaiso/stocksync/internal/breaker"
	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/queue"
	"github.com/shaiso/stocksync/internal/repo"
)

const testSecret = "s3cret"

type fakeSubmitter struct {
	jobs []*domain.SyncJob
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, job *domain.SyncJob) (*queue.Job, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	f.jobs = append(f.jobs, job)

	name := queue.QueueStockSync
	if job.Type == domain.JobTypeCriticalStock {
		name = queue.QueueCriticalStock
	}
	return &queue.Job{ID: "q-" + job.ID.String(), Queue: name}, nil
}

type fakeStatuses map[string]domain.SyncStatus

func (f fakeStatuses) GetSyncStatus(_ context.Context, source domain.Source, resourceID string) (*domain.SyncStatus, error) {
	st, ok := f[domain.ResourceKey(source, resourceID)]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &st, nil
}

type fakeAlerts struct {
	filter repo.AlertFilter
	alerts []domain.Alert
}

func (f *fakeAlerts) ListAlerts(_ context.Context, filter repo.AlertFilter) ([]domain.Alert, error) {
	f.filter = filter
	return f.alerts, nil
}

type fakeQueues struct {
	stats []queue.Stats
	err   error
}

func (f fakeQueues) Stats(context.Context) ([]queue.Stats, error) {
	return f.stats, f.err
}

type fakeIntegration struct {
	source  domain.Source
	breaker *breaker.Breaker
	health  error
}

func (f *fakeIntegration) Source() domain.Source        { return f.source }
func (f *fakeIntegration) Health(context.Context) error { return f.health }
func (f *fakeIntegration) Breaker() *breaker.Breaker    { return f.breaker }

type pingFunc func(ctx context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

type fixture struct {
	submitter *fakeSubmitter
	alerts    *fakeAlerts
	pos       *fakeIntegration
	router    http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		submitter: &fakeSubmitter{},
		alerts:    &fakeAlerts{},
		pos: &fakeIntegration{
			source:  domain.SourcePOS,
			breaker: breaker.New("pos", breaker.Config{FailureThreshold: 1, Logger: logger}),
		},
	}

	statuses := fakeStatuses{
		domain.ResourceKey(domain.SourceERP, "wh1"): {
			Source: domain.SourceERP, ResourceID: "wh1", Status: domain.SyncStateCompleted, StockSynced: 42,
		},
	}

	h := NewHandler(Config{
		Submitter: f.submitter,
		Statuses:  statuses,
		Alerts:    f.alerts,
		Queues: fakeQueues{stats: []queue.Stats{
			{Name: queue.QueueStockSync, Waiting: 3, Completed: 8, Failed: 2},
		}},
		Integrations: []Integration{f.pos},
		Checks: map[string]Pinger{
			"database": pingFunc(func(context.Context) error { return nil }),
		},
		WebhookSecret: testSecret,
		Logger:        logger,
	})
	f.router = h.Routes()
	return f
}

func (f *fixture) do(method, path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	if err := json.Unmarshal(resp.Data, dest); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestTriggerSync(t *testing.T) {
	f := newFixture(t)

	body := []byte(`{"type":"stock_sync","source":"pos","resource_id":"s1","options":{"force":true,"priority":7,"batch_size":20}}`)
	rec := f.do(http.MethodPost, "/api/v1/sync/trigger", body, nil)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp TriggerResponse
	decodeData(t, rec, &resp)
	if resp.Queue != queue.QueueStockSync {
		t.Errorf("expected queue %s, got %s", queue.QueueStockSync, resp.Queue)
	}

	if len(f.submitter.jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(f.submitter.jobs))
	}
	job := f.submitter.jobs[0]
	if resp.JobID != job.ID {
		t.Errorf("job id mismatch: %s != %s", resp.JobID, job.ID)
	}
	if !job.Options.Force || job.Priority != 7 || job.Options.BatchSize != 20 {
		t.Errorf("options not propagated: %+v priority=%d", job.Options, job.Priority)
	}
}

func TestTriggerSync_BadRequest(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"type":`},
		{"unknown type", `{"type":"everything","source":"pos","resource_id":"s1"}`},
		{"unknown source", `{"type":"stock_sync","source":"crm","resource_id":"s1"}`},
		{"missing resource", `{"type":"stock_sync","source":"pos"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/v1/sync/trigger", []byte(tt.body), nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
	if len(f.submitter.jobs) != 0 {
		t.Error("no job must be submitted")
	}
}

func TestTriggerSync_SubmitError(t *testing.T) {
	f := newFixture(t)
	f.submitter.err = errors.New("broker unavailable")

	body := []byte(`{"type":"stock_sync","source":"pos","resource_id":"s1"}`)
	rec := f.do(http.MethodPost, "/api/v1/sync/trigger", body, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestGetSyncStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/sync/status/erp/wh1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st domain.SyncStatus
	decodeData(t, rec, &st)
	if st.StockSynced != 42 || st.Status != domain.SyncStateCompleted {
		t.Errorf("unexpected status %+v", st)
	}

	if rec := f.do(http.MethodGet, "/api/v1/sync/status/erp/nope", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/v1/sync/status/crm/wh1", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown source, got %d", rec.Code)
	}
}

func signed(body []byte, secret string) http.Header {
	h := http.Header{}
	h.Set(SignatureHeader, Sign([]byte(secret), body))
	return h
}

func TestWebhook_Enqueues(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType domain.JobType
		wantIDs  int
	}{
		{"stock with products", `{"event":"stock.updated","resource_id":"s1","product_ids":["p1","p2"]}`, domain.JobTypeStockSync, 2},
		{"stock without products", `{"event":"stock.updated","resource_id":"s1"}`, domain.JobTypeIncrementalSync, 0},
		{"stock depleted", `{"event":"stock.depleted","resource_id":"s1","product_ids":["p1"]}`, domain.JobTypeCriticalStock, 1},
		{"product updated", `{"event":"product.updated","resource_id":"s1","product_ids":["p1"]}`, domain.JobTypeProductSync, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			body := []byte(tt.body)

			rec := f.do(http.MethodPost, "/webhooks/pos", body, signed(body, testSecret))
			if rec.Code != http.StatusAccepted {
				t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
			}

			if len(f.submitter.jobs) != 1 {
				t.Fatalf("expected 1 job, got %d", len(f.submitter.jobs))
			}
			job := f.submitter.jobs[0]
			if job.Type != tt.wantType {
				t.Errorf("expected type %s, got %s", tt.wantType, job.Type)
			}
			if job.Source != domain.SourcePOS || job.ResourceID != "s1" {
				t.Errorf("unexpected target %s/%s", job.Source, job.ResourceID)
			}
			if job.Priority != webhookPriority {
				t.Errorf("expected priority %d, got %d", webhookPriority, job.Priority)
			}
			if len(job.Options.ProductIDs) != tt.wantIDs {
				t.Errorf("expected %d product ids, got %v", tt.wantIDs, job.Options.ProductIDs)
			}
		})
	}
}

func TestWebhook_Signature(t *testing.T) {
	body := []byte(`{"event":"stock.updated","resource_id":"s1"}`)

	tests := []struct {
		name   string
		header http.Header
	}{
		{"missing", nil},
		{"wrong secret", signed(body, "other")},
		{"no prefix", http.Header{SignatureHeader: []string{"deadbeef"}}},
		{"not hex", http.Header{SignatureHeader: []string{"sha256=zz"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(http.MethodPost, "/webhooks/pos", body, tt.header)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
			if len(f.submitter.jobs) != 0 {
				t.Error("rejected webhook must not enqueue")
			}
		})
	}
}

func TestWebhook_TamperedBody(t *testing.T) {
	f := newFixture(t)
	orig := []byte(`{"event":"stock.updated","resource_id":"s1"}`)
	tampered := []byte(`{"event":"stock.updated","resource_id":"s2"}`)

	rec := f.do(http.MethodPost, "/webhooks/pos", tampered, signed(orig, testSecret))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestWebhook_EmptySecretRejects(t *testing.T) {
	h := NewHandler(Config{Submitter: &fakeSubmitter{}, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	body := []byte(`{"event":"stock.updated","resource_id":"s1"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/pos", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, Sign(nil, body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestWebhook_IgnoredAndInvalid(t *testing.T) {
	f := newFixture(t)

	ignored := []byte(`{"event":"customer.updated","resource_id":"s1"}`)
	if rec := f.do(http.MethodPost, "/webhooks/erp", ignored, signed(ignored, testSecret)); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for ignored event, got %d", rec.Code)
	}

	noResource := []byte(`{"event":"stock.updated"}`)
	if rec := f.do(http.MethodPost, "/webhooks/erp", noResource, signed(noResource, testSecret)); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without resource_id, got %d", rec.Code)
	}

	body := []byte(`{"event":"stock.updated","resource_id":"s1"}`)
	if rec := f.do(http.MethodPost, "/webhooks/crm", body, signed(body, testSecret)); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown source, got %d", rec.Code)
	}

	if len(f.submitter.jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(f.submitter.jobs))
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	h := NewHandler(Config{
		Checks: map[string]Pinger{
			"cache": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestListQueues(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/queues", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var queues []QueueResponse
	decodeData(t, rec, &queues)
	if len(queues) != 1 {
		t.Fatalf("expected 1 queue, got %d", len(queues))
	}
	if queues[0].Waiting != 3 || queues[0].FailureRate != 0.2 {
		t.Errorf("unexpected queue %+v", queues[0])
	}
}

func TestIntegrations_ListAndReset(t *testing.T) {
	f := newFixture(t)

	_ = f.pos.breaker.Execute(context.Background(), func(context.Context) error {
		return errors.New("upstream down")
	})
	if f.pos.breaker.State() != breaker.StateOpen {
		t.Fatalf("expected breaker open, got %s", f.pos.breaker.State())
	}

	f.pos.health = errors.New("upstream down")
	rec := f.do(http.MethodGet, "/api/v1/integrations?probe=true", nil, nil)
	var list []IntegrationResponse
	decodeData(t, rec, &list)
	if len(list) != 1 || list[0].State != breaker.StateOpen {
		t.Fatalf("unexpected integrations %+v", list)
	}
	if list[0].Healthy == nil || *list[0].Healthy {
		t.Error("expected probe to report unhealthy")
	}

	rec = f.do(http.MethodPost, "/api/v1/integrations/pos/reset", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.pos.breaker.State() != breaker.StateClosed {
		t.Errorf("expected breaker closed after reset, got %s", f.pos.breaker.State())
	}

	if rec := f.do(http.MethodPost, "/api/v1/integrations/crm/reset", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListAlerts(t *testing.T) {
	f := newFixture(t)
	f.alerts.alerts = []domain.Alert{*domain.NewAlert(domain.AlertTypeZeroStock, domain.SeverityCritical, "t", "m", nil)}

	rec := f.do(http.MethodGet, "/api/v1/alerts?severity=CRITICAL&limit=1000&offset=5", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.alerts.filter.Severity != domain.SeverityCritical || f.alerts.filter.Limit != maxAlertLimit || f.alerts.filter.Offset != 5 {
		t.Errorf("unexpected filter %+v", f.alerts.filter)
	}

	if rec := f.do(http.MethodGet, "/api/v1/alerts?severity=SEVERE", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/v1/alerts?limit=-1", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
