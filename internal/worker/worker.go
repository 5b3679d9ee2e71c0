package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/stocksync/internal/cache"
	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/integration"
	"github.com/shaiso/stocksync/internal/queue"
	"github.com/shaiso/stocksync/internal/repo"
	"github.com/shaiso/stocksync/internal/telemetry"
)

// Default configuration values.
const (
	defaultPageSize     = 100
	defaultStockBatch   = 50
	defaultBatchDelay   = 100 * time.Millisecond
	defaultRecentWindow = time.Minute
	defaultLockTTL      = 10 * time.Minute
	defaultUpsertBatch  = 500
	criticalJobPriority = 10
	releaseLockTimeout  = 5 * time.Second
)

// Upstream — integration client одного источника.
type Upstream interface {
	Source() domain.Source
	ListProducts(ctx context.Context, resourceID string, page integration.Page) ([]domain.Product, error)
	GetStockBatch(ctx context.Context, resourceID string, productIDs []string, since *time.Time) ([]domain.StockLookup, error)
	ListCustomers(ctx context.Context, resourceID string, page integration.Page) ([]domain.Customer, error)
}

// Datastore — центральное хранилище.
type Datastore interface {
	UpsertProducts(ctx context.Context, source domain.Source, resourceID string, products []domain.Product, batchSize int) (repo.UpsertResult, error)
	UpsertStock(ctx context.Context, source domain.Source, resourceID string, records []domain.StockRecord, batchSize int) (repo.UpsertResult, error)
	UpsertCustomers(ctx context.Context, source domain.Source, resourceID string, customers []domain.Customer, batchSize int) (repo.UpsertResult, error)
	ListProductRefs(ctx context.Context, source domain.Source, resourceID string) ([]domain.ProductRef, error)
	ListLowStock(ctx context.Context, source domain.Source, resourceID string) ([]domain.StockRecord, error)
	GetLastSyncTimestamp(ctx context.Context, source domain.Source, resourceID, entityType string) (time.Time, error)
	AppendIntegrationLog(ctx context.Context, entry *domain.IntegrationLog) error
	GetSyncStatus(ctx context.Context, source domain.Source, resourceID string) (*domain.SyncStatus, error)
	SaveSyncStatus(ctx context.Context, st *domain.SyncStatus) error
}

// Locker — распределённая блокировка ресурса.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Alerter отправляет алерты. Ошибка отправки не прерывает задание.
type Alerter interface {
	Send(ctx context.Context, a *domain.Alert) error
}

// JobSubmitter ставит задания в очереди.
type JobSubmitter interface {
	Submit(ctx context.Context, job *domain.SyncJob) (*queue.Job, error)
}

// Config — конфигурация Worker.
type Config struct {
	// Upstreams — integration clients по источнику.
	Upstreams map[domain.Source]Upstream

	// CriticalUpstreams — клиенты с политикой повторов для критичных
	// остатков. Если для источника не задан, используется Upstreams.
	CriticalUpstreams map[domain.Source]Upstream

	Store     Datastore
	Locker    Locker
	Alerts    Alerter
	Submitter JobSubmitter

	// Кэши (опционально).
	StockCache   *cache.StockCache
	ProductCache *cache.ProductCache
	StatusCache  *cache.SyncStatusCache

	// PageSize — размер страницы каталога (default: 100).
	PageSize int

	// StockBatch — товаров в одном batched-запросе остатков (default: 50).
	StockBatch int

	// BatchDelay — пауза между пачками (default: 100ms, < 0 — без паузы).
	BatchDelay time.Duration

	// RecentWindow — окно, в котором успешная синхронизация остатков
	// не повторяется без force (default: 1m).
	RecentWindow time.Duration

	// LockTTL — TTL lock'а ресурса (default: 10m).
	LockTTL time.Duration

	// UpsertBatch — строк в одном INSERT (default: 500).
	UpsertBatch int

	// Registry (опционально; если nil — процессоры по умолчанию).
	Registry *Registry

	Now    func() time.Time
	Logger *slog.Logger
}

// Worker выполняет задания синхронизации.
type Worker struct {
	upstreams         map[domain.Source]Upstream
	criticalUpstreams map[domain.Source]Upstream

	store     Datastore
	locker    Locker
	alerts    Alerter
	submitter JobSubmitter

	stockCache   *cache.StockCache
	productCache *cache.ProductCache
	statusCache  *cache.SyncStatusCache

	pageSize     int
	stockBatch   int
	batchDelay   time.Duration
	recentWindow time.Duration
	lockTTL      time.Duration
	upsertBatch  int

	registry *Registry
	now      func() time.Time
	logger   *slog.Logger
}

// New создаёт Worker.
func New(cfg Config) *Worker {
	w := &Worker{
		upstreams:         cfg.Upstreams,
		criticalUpstreams: cfg.CriticalUpstreams,
		store:             cfg.Store,
		locker:            cfg.Locker,
		alerts:            cfg.Alerts,
		submitter:         cfg.Submitter,
		stockCache:        cfg.StockCache,
		productCache:      cfg.ProductCache,
		statusCache:       cfg.StatusCache,
		pageSize:          cfg.PageSize,
		stockBatch:        cfg.StockBatch,
		batchDelay:        cfg.BatchDelay,
		recentWindow:      cfg.RecentWindow,
		lockTTL:           cfg.LockTTL,
		upsertBatch:       cfg.UpsertBatch,
		registry:          cfg.Registry,
		now:               cfg.Now,
		logger:            cfg.Logger,
	}

	if w.pageSize <= 0 {
		w.pageSize = defaultPageSize
	}
	if w.stockBatch <= 0 {
		w.stockBatch = defaultStockBatch
	}
	if w.batchDelay < 0 {
		w.batchDelay = 0
	} else if w.batchDelay == 0 {
		w.batchDelay = defaultBatchDelay
	}
	if w.recentWindow <= 0 {
		w.recentWindow = defaultRecentWindow
	}
	if w.lockTTL <= 0 {
		w.lockTTL = defaultLockTTL
	}
	if w.upsertBatch <= 0 {
		w.upsertBatch = defaultUpsertBatch
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With("component", "worker")

	if w.registry == nil {
		w.registry = NewRegistry()
		w.registry.Register(domain.JobTypeProductSync, w.syncProducts)
		w.registry.Register(domain.JobTypeFullSync, w.syncFull)
		w.registry.Register(domain.JobTypeCustomerSync, w.syncCustomers)
		w.registry.Register(domain.JobTypeStockSync, w.syncStock)
		w.registry.Register(domain.JobTypeIncrementalSync, w.syncStock)
		w.registry.Register(domain.JobTypeCriticalStock, w.recheckCritical)
	}

	return w
}

// Register назначает Worker обработчиком очередей синхронизации.
func (w *Worker) Register(m *queue.Manager) error {
	for _, name := range []string{queue.QueueStockSync, queue.QueueCriticalStock} {
		if err := m.RegisterProcessor(name, w.HandleJob); err != nil {
			return err
		}
	}
	return nil
}

// Process выполняет задание под lock'ом ресурса.
func (w *Worker) Process(ctx context.Context, job *domain.SyncJob) error {
	if err := job.Validate(); err != nil {
		return permanent(err)
	}

	up, ok := w.upstreams[job.Source]
	if !ok {
		return permanent(fmt.Errorf("%w: %s", ErrNoUpstream, job.Source))
	}
	if job.Type == domain.JobTypeCriticalStock {
		if critical, ok := w.criticalUpstreams[job.Source]; ok {
			up = critical
		}
	}

	process, err := w.registry.Get(job.Type)
	if err != nil {
		return permanent(err)
	}

	logger := telemetry.WithJob(w.logger, job.ID.String(), string(job.Type), string(job.Source), job.ResourceID).
		With("attempt", job.Attempt)
	ctx = telemetry.WithLogger(ctx, logger)

	run, err := w.runLocked(ctx, job, up, process, logger)
	if err != nil {
		return err
	}

	// Повторная проверка ставится после освобождения lock'а,
	// иначе она упрётся в lock родительского задания.
	if run != nil {
		w.submitRecheck(ctx, run)
	}
	return nil
}

// runLocked захватывает lock ресурса и выполняет processor.
// Возвращает nil Run, если синхронизация пропущена.
func (w *Worker) runLocked(ctx context.Context, job *domain.SyncJob, up Upstream, process Processor, logger *slog.Logger) (*Run, error) {
	token, acquired, err := w.locker.Acquire(ctx, job.LockKey(), w.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		logger.Info("resource is locked, job returned to queue")
		return nil, fmt.Errorf("%w: %s", ErrLockUnavailable, job.LockKey())
	}
	defer w.releaseLock(ctx, job.LockKey(), token, logger)

	status, err := w.loadStatus(ctx, job)
	if err != nil {
		return nil, err
	}

	if w.shouldSkip(job, status) {
		logger.Info("stock synced recently, skipping", "last_stock_sync", status.LastStockSync)
		return nil, nil
	}

	status.MarkSyncing()
	w.saveStatus(ctx, status, logger)

	run := &Run{Job: job, Upstream: up, Status: status}
	start := w.now()
	logger.Info("sync started")

	err = process(ctx, run)
	duration := w.now().Sub(start)

	if err != nil {
		status.MarkError(err)
		w.saveStatus(ctx, status, logger)
		w.logIntegration(ctx, run, start, duration, err, logger)
		observeSync(job, "error", duration)

		logger.Error("sync failed",
			"duration", duration,
			"error_count", status.ErrorCount,
			"error", err,
		)
		return nil, err
	}

	status.MarkCompleted()
	w.saveStatus(ctx, status, logger)
	w.logIntegration(ctx, run, start, duration, nil, logger)
	observeSync(job, "success", duration)

	logger.Info("sync completed",
		"duration", duration,
		"products", run.Products.SuccessCount,
		"stock", run.Stock.SuccessCount,
		"customers", run.Customers.SuccessCount,
		"failed", run.Failed(),
		"no_data", run.NoData,
		"alerts", run.Alerts,
	)
	return run, nil
}

// shouldSkip — синхронизация остатков недавно успешно завершилась.
func (w *Worker) shouldSkip(job *domain.SyncJob, status *domain.SyncStatus) bool {
	if job.Options.Force || len(job.Options.ProductIDs) > 0 {
		return false
	}
	switch job.Type {
	case domain.JobTypeStockSync, domain.JobTypeIncrementalSync:
		return status.RecentlyCompleted(w.now(), w.recentWindow)
	default:
		return false
	}
}

func (w *Worker) loadStatus(ctx context.Context, job *domain.SyncJob) (*domain.SyncStatus, error) {
	status, err := w.store.GetSyncStatus(ctx, job.Source, job.ResourceID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.NewSyncStatus(job.Source, job.ResourceID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sync status: %w", err)
	}
	return status, nil
}

// saveStatus пишет статус в хранилище и кэш. Ошибки только логируются:
// статус вторичен по отношению к данным.
func (w *Worker) saveStatus(ctx context.Context, status *domain.SyncStatus, logger *slog.Logger) {
	if err := w.store.SaveSyncStatus(ctx, status); err != nil {
		logger.Warn("failed to save sync status", "status", status.Status, "error", err)
	}
	if w.statusCache != nil {
		if err := w.statusCache.Set(ctx, status); err != nil {
			logger.Debug("failed to cache sync status", "error", err)
		}
	}
}

func (w *Worker) releaseLock(ctx context.Context, key, token string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseLockTimeout)
	defer cancel()

	if err := w.locker.Release(ctx, key, token); err != nil {
		logger.Warn("failed to release lock", "key", key, "error", err)
	}
}

// logIntegration добавляет запись в журнал интеграций. CreatedAt — начало
// синхронизации: по нему считается delta следующей инкрементальной.
func (w *Worker) logIntegration(ctx context.Context, run *Run, start time.Time, d time.Duration, err error, logger *slog.Logger) {
	entry := &domain.IntegrationLog{
		Source:     run.Job.Source,
		ResourceID: run.Job.ResourceID,
		EntityType: entityFor(run.Job.Type),
		Status:     domain.LogStatusSuccess,
		Details: map[string]any{
			"job_id":    run.Job.ID.String(),
			"job_type":  string(run.Job.Type),
			"attempt":   run.Job.Attempt,
			"products":  run.Products.SuccessCount,
			"stock":     run.Stock.SuccessCount,
			"customers": run.Customers.SuccessCount,
			"failed":    run.Failed(),
			"no_data":   run.NoData,
		},
		Duration:  d,
		CreatedAt: start.UTC(),
	}

	switch {
	case err != nil:
		entry.Status = domain.LogStatusError
		entry.Error = err.Error()
	case run.Failed() > 0:
		entry.Status = domain.LogStatusPartial
	}

	if err := w.store.AppendIntegrationLog(ctx, entry); err != nil {
		logger.Warn("failed to append integration log", "error", err)
	}
}

// entityFor — сущность журнала для типа задания.
func entityFor(t domain.JobType) string {
	switch t {
	case domain.JobTypeProductSync:
		return domain.EntityProducts
	case domain.JobTypeCustomerSync:
		return domain.EntityCustomers
	case domain.JobTypeCriticalStock:
		return domain.EntityCriticalStock
	default:
		return domain.EntityStock
	}
}
