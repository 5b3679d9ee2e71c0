package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/stocksync/internal/breaker"
	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/queue"
	"github.com/shaiso/stocksync/internal/telemetry"
)

// HealthTarget — upstream с лёгкой проверкой доступности.
type HealthTarget interface {
	Source() domain.Source
	Health(ctx context.Context) error
	Breaker() *breaker.Breaker
}

// Alerter отправляет операционные алерты.
type Alerter interface {
	Send(ctx context.Context, a *domain.Alert) error
}

// StatusStore — статусы синхронизации ресурсов.
type StatusStore interface {
	ListSyncStatuses(ctx context.Context) ([]domain.SyncStatus, error)
	ResetStaleErrors(ctx context.Context, quietSince time.Time) (int64, error)
}

// StockReader читает последние известные остатки ресурса.
type StockReader interface {
	ListStock(ctx context.Context, source domain.Source, resourceID string) ([]domain.StockRecord, error)
}

// StockWarmer — кэш остатков для прогрева.
type StockWarmer interface {
	SetMany(ctx context.Context, source, resourceID string, records []domain.StockRecord) error
}

// QueueStatser — источник статистики очередей.
type QueueStatser interface {
	Stats(ctx context.Context) ([]queue.Stats, error)
}

// Default configuration values.
const (
	defaultQuietPeriod          = 24 * time.Hour
	defaultBacklogThreshold     = 1000
	defaultFailureRateThreshold = 0.1
	defaultMinSamples           = 10
	defaultDegradedErrorCount   = 5
)

// MaintenanceConfig — конфигурация Maintenance.
type MaintenanceConfig struct {
	Integrations []HealthTarget
	Alerts       Alerter
	Statuses     StatusStore
	Stock        StockReader
	StockCache   StockWarmer
	Queues       QueueStatser

	// HotResources — ресурсы, остатки которых прогреваются в кэше.
	HotResources []Resource

	// QuietPeriod — через сколько без обновлений сбрасываются ошибки (default: 24h).
	QuietPeriod time.Duration

	// BacklogThreshold — waiting+delayed, после которого очередь считается забитой (default: 1000).
	BacklogThreshold int

	// FailureRateThreshold — доля неудачных задач для алерта (default: 0.1).
	FailureRateThreshold float64

	// MinSamples — минимум завершённых задач для оценки доли ошибок (default: 10).
	MinSamples int

	// DegradedErrorCount — error_count ресурса для алерта о деградации (default: 5).
	DegradedErrorCount int

	Now    func() time.Time
	Logger *slog.Logger
}

// Maintenance выполняет периодические задачи обслуживания.
type Maintenance struct {
	cfg    MaintenanceConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewMaintenance создаёт Maintenance.
func NewMaintenance(cfg MaintenanceConfig) *Maintenance {
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = defaultQuietPeriod
	}
	if cfg.BacklogThreshold <= 0 {
		cfg.BacklogThreshold = defaultBacklogThreshold
	}
	if cfg.FailureRateThreshold <= 0 {
		cfg.FailureRateThreshold = defaultFailureRateThreshold
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = defaultMinSamples
	}
	if cfg.DegradedErrorCount <= 0 {
		cfg.DegradedErrorCount = defaultDegradedErrorCount
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Maintenance{
		cfg:    cfg,
		now:    now,
		logger: logger.With("component", "maintenance"),
	}
}

// MaintenanceSpecs — расписания таймеров обслуживания.
type MaintenanceSpecs struct {
	Health  string `toml:"health"`
	Warmup  string `toml:"warmup"`
	Cleanup string `toml:"cleanup"`
	Metrics string `toml:"metrics"`
	Monitor string `toml:"monitor"`
}

// DefaultMaintenanceSpecs возвращает расписания по умолчанию.
func DefaultMaintenanceSpecs() MaintenanceSpecs {
	return MaintenanceSpecs{
		Health:  "@every 2m",
		Warmup:  "@every 10m",
		Cleanup: "@every 1h",
		Metrics: "@every 30s",
		Monitor: "@every 1m",
	}
}

// Имена таймеров обслуживания.
const (
	TimerHealthCheck  = "health-check"
	TimerCacheWarmup  = "cache-warmup"
	TimerCleanup      = "status-cleanup"
	TimerMetrics      = "metrics"
	TimerQueueMonitor = "queue-monitor"
)

// Timers возвращает таймеры обслуживания. Пустое расписание отключает таймер.
func (m *Maintenance) Timers(specs MaintenanceSpecs) []Timer {
	all := []Timer{
		{Name: TimerHealthCheck, Spec: specs.Health, Run: m.CheckHealth},
		{Name: TimerCacheWarmup, Spec: specs.Warmup, Run: m.WarmCache},
		{Name: TimerCleanup, Spec: specs.Cleanup, Run: m.CleanupStale},
		{Name: TimerMetrics, Spec: specs.Metrics, Run: m.CollectMetrics},
		{Name: TimerQueueMonitor, Spec: specs.Monitor, Run: m.MonitorQueues},
	}

	timers := all[:0]
	for _, t := range all {
		if t.Spec != "" {
			timers = append(timers, t)
		}
	}
	return timers
}

// CheckHealth проверяет каждый upstream и деградацию ресурсов.
func (m *Maintenance) CheckHealth(ctx context.Context) error {
	var errs []error

	for _, it := range m.cfg.Integrations {
		err := it.Health(ctx)
		if err == nil {
			m.logger.Debug("integration healthy", "source", it.Source())
			continue
		}

		m.logger.Warn("integration unhealthy", "source", it.Source(), "error", err)
		m.alert(ctx, domain.NewAlert(
			domain.AlertTypeIntegrationDown,
			domain.SeverityHigh,
			fmt.Sprintf("Integration %s is unhealthy", it.Source()),
			err.Error(),
			map[string]any{
				"source":        string(it.Source()),
				"breaker_state": string(it.Breaker().State()),
			},
		))
	}

	if m.cfg.Statuses != nil {
		statuses, err := m.cfg.Statuses.ListSyncStatuses(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("list sync statuses: %w", err))
		}
		for _, st := range statuses {
			if st.ErrorCount < m.cfg.DegradedErrorCount {
				continue
			}
			m.alert(ctx, domain.NewAlert(
				domain.AlertTypeSyncDegraded,
				domain.SeverityMedium,
				fmt.Sprintf("Sync degraded for %s", domain.ResourceKey(st.Source, st.ResourceID)),
				fmt.Sprintf("%d consecutive sync errors, last: %s", st.ErrorCount, st.LastError),
				map[string]any{
					"source":      string(st.Source),
					"resource_id": st.ResourceID,
					"error_count": st.ErrorCount,
				},
			))
		}
	}

	return errors.Join(errs...)
}

// WarmCache загружает последние остатки горячих ресурсов в кэш.
func (m *Maintenance) WarmCache(ctx context.Context) error {
	if m.cfg.Stock == nil || m.cfg.StockCache == nil {
		return nil
	}

	var errs []error
	for _, r := range m.cfg.HotResources {
		records, err := m.cfg.Stock.ListStock(ctx, r.Source, r.ResourceID)
		if err != nil {
			errs = append(errs, fmt.Errorf("load stock %s: %w", domain.ResourceKey(r.Source, r.ResourceID), err))
			continue
		}
		if len(records) == 0 {
			continue
		}

		if err := m.cfg.StockCache.SetMany(ctx, string(r.Source), r.ResourceID, records); err != nil {
			errs = append(errs, fmt.Errorf("warm stock %s: %w", domain.ResourceKey(r.Source, r.ResourceID), err))
			continue
		}

		m.logger.Debug("cache warmed", "source", r.Source, "resource_id", r.ResourceID, "records", len(records))
	}
	return errors.Join(errs...)
}

// CleanupStale сбрасывает счётчики ошибок ресурсов, не обновлявшихся QuietPeriod.
func (m *Maintenance) CleanupStale(ctx context.Context) error {
	if m.cfg.Statuses == nil {
		return nil
	}

	n, err := m.cfg.Statuses.ResetStaleErrors(ctx, m.now().Add(-m.cfg.QuietPeriod))
	if err != nil {
		return fmt.Errorf("reset stale errors: %w", err)
	}
	if n > 0 {
		m.logger.Info("stale sync statuses reset", "count", n)
	}
	return nil
}

// CollectMetrics обновляет gauges очередей и breaker'ов.
func (m *Maintenance) CollectMetrics(ctx context.Context) error {
	for _, it := range m.cfg.Integrations {
		b := it.Breaker()
		telemetry.BreakerState.WithLabelValues(b.Name()).Set(telemetry.BreakerStateValue(string(b.State())))
	}

	if m.cfg.Queues == nil {
		return nil
	}
	// Stats сам выставляет queue depth gauges.
	_, err := m.cfg.Queues.Stats(ctx)
	return err
}

// MonitorQueues поднимает алерты при переполнении очереди или высокой доле ошибок.
func (m *Maintenance) MonitorQueues(ctx context.Context) error {
	if m.cfg.Queues == nil {
		return nil
	}

	stats, err := m.cfg.Queues.Stats(ctx)
	for _, s := range stats {
		backlog := s.Waiting + s.Delayed
		if backlog > m.cfg.BacklogThreshold {
			m.alert(ctx, domain.NewAlert(
				domain.AlertTypeQueueBacklog,
				domain.SeverityHigh,
				fmt.Sprintf("Queue %s backlog", s.Name),
				fmt.Sprintf("%d jobs waiting, threshold %d", backlog, m.cfg.BacklogThreshold),
				map[string]any{"queue": s.Name, "waiting": s.Waiting, "delayed": s.Delayed},
			))
		}

		if s.Completed+s.Failed >= m.cfg.MinSamples && s.FailureRate() > m.cfg.FailureRateThreshold {
			m.alert(ctx, domain.NewAlert(
				domain.AlertTypeQueueFailureRate,
				domain.SeverityHigh,
				fmt.Sprintf("Queue %s failure rate", s.Name),
				fmt.Sprintf("%.1f%% of recent jobs failed", s.FailureRate()*100),
				map[string]any{"queue": s.Name, "completed": s.Completed, "failed": s.Failed},
			))
		}
	}
	return err
}

// alert отправляет алерт. Ошибка отправки только логируется.
func (m *Maintenance) alert(ctx context.Context, a *domain.Alert) {
	if m.cfg.Alerts == nil {
		return
	}
	if err := m.cfg.Alerts.Send(ctx, a); err != nil {
		m.logger.Warn("failed to send alert", "type", a.Type, "error", err)
	}
}
