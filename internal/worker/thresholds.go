package worker

import (
	"context"
	"fmt"
	"slices"

	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/telemetry"
)

// evaluateThresholds поднимает алерты по пачке остатков.
//
// quantity <= minimum — один HIGH low_stock на пачку. quantity == 0 —
// дополнительно CRITICAL zero_stock, а товары попадают в run.Recheck
// для повторной проверки. Ошибки отправки не прерывают задание.
func (w *Worker) evaluateThresholds(ctx context.Context, run *Run, records []domain.StockRecord) {
	var low, zero []domain.StockRecord
	for _, r := range records {
		if r.IsLow() {
			low = append(low, r)
		}
		if r.IsZero() {
			zero = append(zero, r)
		}
	}

	job := run.Job

	if len(low) > 0 {
		w.sendAlert(ctx, run, domain.NewAlert(
			domain.AlertTypeLowStock,
			domain.SeverityHigh,
			fmt.Sprintf("Low stock: %d products at %s", len(low), domain.ResourceKey(job.Source, job.ResourceID)),
			fmt.Sprintf("%d products are at or below their minimum quantity", len(low)),
			alertData(job, low),
		))
	}

	if len(zero) == 0 {
		return
	}

	w.sendAlert(ctx, run, domain.NewAlert(
		domain.AlertTypeZeroStock,
		domain.SeverityCritical,
		fmt.Sprintf("Out of stock: %d products at %s", len(zero), domain.ResourceKey(job.Source, job.ResourceID)),
		fmt.Sprintf("%d products have zero stock", len(zero)),
		alertData(job, zero),
	))

	// Повторная проверка сама не порождает новых заданий.
	if job.Type == domain.JobTypeCriticalStock {
		return
	}
	for _, r := range zero {
		run.Recheck = append(run.Recheck, r.ProductID)
	}
}

// submitRecheck ставит одно задание critical-stock на все товары
// с нулевым остатком, найденные за выполнение.
func (w *Worker) submitRecheck(ctx context.Context, run *Run) {
	if len(run.Recheck) == 0 || w.submitter == nil {
		return
	}

	job := run.Job
	ids := slices.Compact(slices.Sorted(slices.Values(run.Recheck)))

	critical := domain.NewSyncJob(domain.JobTypeCriticalStock, job.Source, job.ResourceID, domain.JobOptions{ProductIDs: ids})
	critical.Priority = criticalJobPriority

	qj, err := w.submitter.Submit(ctx, critical)
	if err != nil {
		telemetry.FromContext(ctx).Warn("failed to enqueue critical stock recheck", "products", len(ids), "error", err)
		return
	}
	telemetry.FromContext(ctx).Info("critical stock recheck enqueued", "queue_job_id", qj.ID, "products", len(ids))
}

func (w *Worker) sendAlert(ctx context.Context, run *Run, a *domain.Alert) {
	if w.alerts == nil {
		return
	}
	run.Alerts++
	if err := w.alerts.Send(ctx, a); err != nil {
		telemetry.FromContext(ctx).Warn("failed to send alert", "type", a.Type, "severity", a.Severity, "error", err)
	}
}

func alertData(job *domain.SyncJob, records []domain.StockRecord) map[string]any {
	ids := make([]string, len(records))
	items := make([]map[string]any, len(records))
	for i, r := range records {
		ids[i] = r.ProductID
		items[i] = map[string]any{
			"product_id":       r.ProductID,
			"quantity":         r.Quantity,
			"minimum_quantity": r.MinimumQuantity,
		}
	}

	return map[string]any{
		"source":      string(job.Source),
		"resource_id": job.ResourceID,
		"job_id":      job.ID.String(),
		"product_ids": ids,
		"products":    items,
	}
}
