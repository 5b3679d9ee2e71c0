package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/stocksync/internal/breaker"
	"github.com/shaiso/stocksync/internal/cache"
	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/queue"
)

type fakeIntegration struct {
	source domain.Source
	err    error
	b      *breaker.Breaker
}

func (f *fakeIntegration) Source() domain.Source        { return f.source }
func (f *fakeIntegration) Health(context.Context) error { return f.err }
func (f *fakeIntegration) Breaker() *breaker.Breaker    { return f.b }

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []*domain.Alert
}

func (f *fakeAlerter) Send(_ context.Context, a *domain.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *fakeAlerter) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, a := range f.alerts {
		out = append(out, a.Type)
	}
	return out
}

type fakeStatuses struct {
	statuses   []domain.SyncStatus
	quietSince time.Time
}

func (f *fakeStatuses) ListSyncStatuses(context.Context) ([]domain.SyncStatus, error) {
	return f.statuses, nil
}

func (f *fakeStatuses) ResetStaleErrors(_ context.Context, quietSince time.Time) (int64, error) {
	f.quietSince = quietSince
	return 2, nil
}

type fakeQueues struct {
	stats []queue.Stats
}

func (f *fakeQueues) Stats(context.Context) ([]queue.Stats, error) {
	return f.stats, nil
}

type fakeStockReader map[string][]domain.StockRecord

func (f fakeStockReader) ListStock(_ context.Context, source domain.Source, resourceID string) ([]domain.StockRecord, error) {
	return f[domain.ResourceKey(source, resourceID)], nil
}

func TestMaintenance_CheckHealth(t *testing.T) {
	alerts := &fakeAlerter{}
	m := NewMaintenance(MaintenanceConfig{
		Integrations: []HealthTarget{
			&fakeIntegration{source: domain.SourcePOS, b: breaker.New("pos", breaker.Config{})},
			&fakeIntegration{source: domain.SourceERP, err: errors.New("connection refused"), b: breaker.New("erp", breaker.Config{})},
		},
		Statuses: &fakeStatuses{statuses: []domain.SyncStatus{
			{Source: domain.SourcePOS, ResourceID: "store-1", ErrorCount: 7},
			{Source: domain.SourceERP, ResourceID: "wh-1", ErrorCount: 1},
		}},
		Alerts: alerts,
	})

	if err := m.CheckHealth(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := alerts.types()
	want := []string{domain.AlertTypeIntegrationDown, domain.AlertTypeSyncDegraded}
	if len(got) != len(want) {
		t.Fatalf("expected alerts %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("alert %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if alerts.alerts[0].Severity != domain.SeverityHigh {
		t.Errorf("expected HIGH severity, got %s", alerts.alerts[0].Severity)
	}
	if alerts.alerts[0].Data["source"] != "erp" {
		t.Errorf("expected erp source, got %v", alerts.alerts[0].Data["source"])
	}
}

func TestMaintenance_CleanupStale(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	statuses := &fakeStatuses{}
	m := NewMaintenance(MaintenanceConfig{
		Statuses:    statuses,
		QuietPeriod: 6 * time.Hour,
		Now:         func() time.Time { return now },
	})

	if err := m.CleanupStale(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := now.Add(-6 * time.Hour); !statuses.quietSince.Equal(want) {
		t.Errorf("expected cutoff %v, got %v", want, statuses.quietSince)
	}
}

func TestMaintenance_MonitorQueues(t *testing.T) {
	alerts := &fakeAlerter{}
	m := NewMaintenance(MaintenanceConfig{
		Queues: &fakeQueues{stats: []queue.Stats{
			{Name: "stock-sync", Waiting: 900, Delayed: 200, Completed: 50},
			{Name: "notifications", Completed: 8, Failed: 4},
			{Name: "critical-stock", Completed: 2, Failed: 3},
		}},
		Alerts: alerts,
	})

	if err := m.MonitorQueues(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// critical-stock: доля ошибок высокая, но выборка меньше MinSamples.
	got := alerts.types()
	want := []string{domain.AlertTypeQueueBacklog, domain.AlertTypeQueueFailureRate}
	if len(got) != len(want) {
		t.Fatalf("expected alerts %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("alert %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestMaintenance_WarmCache(t *testing.T) {
	store := cache.NewMemoryStore()
	stock := cache.NewStockCache(store, cache.StockConfig{})

	m := NewMaintenance(MaintenanceConfig{
		Stock: fakeStockReader{
			"pos:store-1": {
				{ProductID: "p1", Quantity: 10, Status: domain.StockStatusInStock},
				{ProductID: "p2", Quantity: 0, Status: domain.StockStatusOutOfStock},
			},
		},
		StockCache:   stock,
		HotResources: []Resource{{Source: domain.SourcePOS, ResourceID: "store-1"}},
	})

	if err := m.WarmCache(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := stock.GetMany(context.Background(), "pos", "store-1", []string{"p1", "p2"})
	if len(got) != 2 {
		t.Fatalf("expected 2 cached records, got %d", len(got))
	}
	ok, _ := store.Exists(context.Background(), cache.CriticalStockKey("pos", "store-1", "p2"))
	if !ok {
		t.Error("expected zero stock in critical namespace")
	}
	ok, _ = store.Exists(context.Background(), cache.CriticalStockKey("pos", "store-1", "p1"))
	if ok {
		t.Error("expected p1 outside critical namespace")
	}
}

func TestMaintenance_TimersSkipEmptySpecs(t *testing.T) {
	m := NewMaintenance(MaintenanceConfig{})

	specs := DefaultMaintenanceSpecs()
	specs.Warmup = ""

	timers := m.Timers(specs)
	if len(timers) != 4 {
		t.Fatalf("expected 4 timers, got %d", len(timers))
	}
	for _, tm := range timers {
		if tm.Name == TimerCacheWarmup {
			t.Error("expected warmup timer to be disabled")
		}
		if err := ValidateSpec(tm.Spec); err != nil {
			t.Errorf("timer %s: %v", tm.Name, err)
		}
	}
}
