package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/integration"
	"github.com/shaiso/stocksync/internal/repo"
	"github.com/shaiso/stocksync/internal/telemetry"
)

// syncProducts постранично загружает каталог ресурса.
// Останавливается на пустой или неполной странице либо по Options.Limit.
func (w *Worker) syncProducts(ctx context.Context, run *Run) error {
	job := run.Job
	pageSize := w.pageSizeFor(job)
	offset := job.Options.Offset
	fetched := 0
	startedAt := w.now().UTC()

	for {
		size := pageSize
		if job.Options.Limit > 0 {
			size = min(size, job.Options.Limit-fetched)
			if size <= 0 {
				break
			}
		}

		products, err := run.Upstream.ListProducts(ctx, job.ResourceID, integration.Page{Limit: size, Offset: offset})
		if err != nil {
			return fmt.Errorf("list products at offset %d: %w", offset, err)
		}
		if len(products) == 0 {
			break
		}

		res, err := w.store.UpsertProducts(ctx, job.Source, job.ResourceID, products, w.upsertBatch)
		if err != nil {
			return fmt.Errorf("upsert products: %w", err)
		}
		run.Products.Add(res)
		telemetry.RecordsSynced.WithLabelValues(string(job.Source), domain.EntityProducts).Add(float64(res.SuccessCount))

		if w.productCache != nil {
			if err := w.productCache.SetMany(ctx, string(job.Source), job.ResourceID, products); err != nil {
				telemetry.FromContext(ctx).Debug("failed to cache products", "error", err)
			}
		}

		fetched += len(products)
		offset += len(products)
		if len(products) < size {
			break
		}
		if err := w.pause(ctx); err != nil {
			return err
		}
	}

	run.Status.RecordProducts(run.Products.SuccessCount, startedAt)
	return nil
}

// syncFull — каталог, затем полный проход по остаткам.
func (w *Worker) syncFull(ctx context.Context, run *Run) error {
	if err := w.syncProducts(ctx, run); err != nil {
		return err
	}
	return w.syncStock(ctx, run)
}

// syncCustomers постранично загружает клиентов ресурса.
func (w *Worker) syncCustomers(ctx context.Context, run *Run) error {
	job := run.Job
	pageSize := w.pageSizeFor(job)
	offset := job.Options.Offset

	for {
		customers, err := run.Upstream.ListCustomers(ctx, job.ResourceID, integration.Page{Limit: pageSize, Offset: offset})
		if errors.Is(err, integration.ErrUnsupported) {
			return permanent(err)
		}
		if err != nil {
			return fmt.Errorf("list customers at offset %d: %w", offset, err)
		}
		if len(customers) == 0 {
			break
		}

		res, err := w.store.UpsertCustomers(ctx, job.Source, job.ResourceID, customers, w.upsertBatch)
		if err != nil {
			return fmt.Errorf("upsert customers: %w", err)
		}
		run.Customers.Add(res)
		telemetry.RecordsSynced.WithLabelValues(string(job.Source), domain.EntityCustomers).Add(float64(res.SuccessCount))

		offset += len(customers)
		if len(customers) < pageSize {
			break
		}
		if err := w.pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

// syncStock обновляет остатки известных товаров ресурса.
//
// incremental_sync передаёт upstream время последней успешной
// синхронизации; force обнуляет delta. Товары, которых нет в ответе
// инкрементального запроса, не менялись и пропускаются.
func (w *Worker) syncStock(ctx context.Context, run *Run) error {
	job := run.Job
	startedAt := w.now().UTC()

	ids, minimums, err := w.stockTargets(ctx, job)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		telemetry.FromContext(ctx).Info("no known products for resource")
		run.Status.RecordStock(0, startedAt)
		return nil
	}

	since, err := w.deltaSince(ctx, job)
	if err != nil {
		return err
	}

	for start := 0; start < len(ids); start += w.stockBatch {
		chunk := ids[start:min(start+w.stockBatch, len(ids))]

		lookups, err := run.Upstream.GetStockBatch(ctx, job.ResourceID, chunk, since)
		if err != nil {
			return fmt.Errorf("fetch stock batch at %d: %w", start, err)
		}

		records := w.toRecords(run, lookups, minimums, since != nil)
		if err := w.storeStock(ctx, run, records); err != nil {
			return err
		}
		w.evaluateThresholds(ctx, run, records)

		if start+w.stockBatch < len(ids) {
			if err := w.pause(ctx); err != nil {
				return err
			}
		}
	}

	run.Status.RecordStock(run.Stock.SuccessCount, startedAt)
	return nil
}

// recheckCritical повторно запрашивает остатки критичных товаров и
// обновляет shadow-кэш. Без ProductIDs проверяет все товары ресурса
// на уровне минимума или ниже.
func (w *Worker) recheckCritical(ctx context.Context, run *Run) error {
	job := run.Job

	ids := job.Options.ProductIDs
	minimums := make(map[string]int)
	if len(ids) == 0 {
		low, err := w.store.ListLowStock(ctx, job.Source, job.ResourceID)
		if err != nil {
			return fmt.Errorf("list low stock: %w", err)
		}
		for _, r := range low {
			ids = append(ids, r.ProductID)
			minimums[r.ProductID] = r.MinimumQuantity
		}
	}
	if len(ids) == 0 {
		return nil
	}

	for start := 0; start < len(ids); start += w.stockBatch {
		chunk := ids[start:min(start+w.stockBatch, len(ids))]

		lookups, err := run.Upstream.GetStockBatch(ctx, job.ResourceID, chunk, nil)
		if err != nil {
			return fmt.Errorf("recheck critical stock: %w", err)
		}

		records := w.toRecords(run, lookups, minimums, false)
		if err := w.storeStock(ctx, run, records); err != nil {
			return err
		}
		w.evaluateThresholds(ctx, run, records)
	}
	return nil
}

// stockTargets возвращает внешние ID товаров и их минимальные остатки.
func (w *Worker) stockTargets(ctx context.Context, job *domain.SyncJob) ([]string, map[string]int, error) {
	refs, err := w.store.ListProductRefs(ctx, job.Source, job.ResourceID)
	if err != nil {
		return nil, nil, fmt.Errorf("list products: %w", err)
	}

	minimums := make(map[string]int, len(refs))
	for _, r := range refs {
		minimums[r.ExternalID] = r.MinStock
	}

	if len(job.Options.ProductIDs) > 0 {
		return job.Options.ProductIDs, minimums, nil
	}

	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ExternalID
	}
	return ids, minimums, nil
}

// deltaSince — нижняя граница изменений для incremental_sync.
func (w *Worker) deltaSince(ctx context.Context, job *domain.SyncJob) (*time.Time, error) {
	if job.Type != domain.JobTypeIncrementalSync || job.Options.Force {
		return nil, nil
	}

	ts, err := w.store.GetLastSyncTimestamp(ctx, job.Source, job.ResourceID, domain.EntityStock)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last sync timestamp: %w", err)
	}
	return &ts, nil
}

// toRecords классифицирует ответы upstream. Товар без данных
// учитывается в NoData и не пишется.
func (w *Worker) toRecords(run *Run, lookups []domain.StockLookup, minimums map[string]int, incremental bool) []domain.StockRecord {
	records := make([]domain.StockRecord, 0, len(lookups))
	for _, l := range lookups {
		if !l.Found {
			if !incremental {
				run.NoData++
			}
			continue
		}

		rec := l.Record
		if rec.ProductID == "" {
			rec.ProductID = l.ProductID
		}
		if rec.MinimumQuantity == 0 {
			rec.MinimumQuantity = minimums[rec.ProductID]
		}
		if rec.SyncedAt.IsZero() {
			rec.SyncedAt = w.now().UTC()
		}
		rec.Classify()
		records = append(records, rec)
	}
	return records
}

// storeStock пишет остатки в хранилище и кэш.
func (w *Worker) storeStock(ctx context.Context, run *Run, records []domain.StockRecord) error {
	if len(records) == 0 {
		return nil
	}
	job := run.Job

	res, err := w.store.UpsertStock(ctx, job.Source, job.ResourceID, records, w.upsertBatch)
	if err != nil {
		return fmt.Errorf("upsert stock: %w", err)
	}
	run.Stock.Add(res)
	telemetry.RecordsSynced.WithLabelValues(string(job.Source), domain.EntityStock).Add(float64(res.SuccessCount))

	if w.stockCache != nil {
		if err := w.stockCache.SetMany(ctx, string(job.Source), job.ResourceID, records); err != nil {
			telemetry.FromContext(ctx).Debug("failed to cache stock", "error", err)
		}
	}
	return nil
}

// pageSizeFor — размер страницы задания или по умолчанию.
func (w *Worker) pageSizeFor(job *domain.SyncJob) int {
	if job.Options.BatchSize > 0 {
		return job.Options.BatchSize
	}
	return w.pageSize
}

// pause выдерживает паузу между пачками.
func (w *Worker) pause(ctx context.Context) error {
	if w.batchDelay <= 0 {
		return nil
	}

	timer := time.NewTimer(w.batchDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
