package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/queue"
)

// Submitter ставит задание синхронизации в очередь.
type Submitter interface {
	Submit(ctx context.Context, job *domain.SyncJob) (*queue.Job, error)
}

// Resource — синхронизируемый ресурс внешней системы.
type Resource struct {
	Source     domain.Source `toml:"source" json:"source"`
	ResourceID string        `toml:"resource_id" json:"resource_id"`
}

// SyncSpecs — расписания таймеров синхронизации. Пустое расписание
// отключает таймер.
type SyncSpecs struct {
	Stock     string `toml:"stock"`
	Critical  string `toml:"critical"`
	Products  string `toml:"products"`
	Customers string `toml:"customers"`
	Full      string `toml:"full"`
}

// DefaultSyncSpecs возвращает расписания по умолчанию.
func DefaultSyncSpecs() SyncSpecs {
	return SyncSpecs{
		Stock:     "@every 5m",
		Critical:  "@every 1m",
		Products:  "@every 1h",
		Customers: "@every 6h",
		Full:      "0 2 * * *",
	}
}

// Имена таймеров синхронизации.
const (
	TimerStockSync     = "stock-sync"
	TimerCriticalStock = "critical-stock"
	TimerProductSync   = "product-sync"
	TimerCustomerSync  = "customer-sync"
	TimerFullSync      = "full-sync"
)

// SyncTimers строит таймеры, которые ставят по заданию на каждый ресурс.
func SyncTimers(sub Submitter, resources []Resource, specs SyncSpecs, logger *slog.Logger) []Timer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	defs := []struct {
		name    string
		spec    string
		jobType domain.JobType
		only    domain.Source
	}{
		{TimerStockSync, specs.Stock, domain.JobTypeIncrementalSync, ""},
		{TimerCriticalStock, specs.Critical, domain.JobTypeCriticalStock, ""},
		{TimerProductSync, specs.Products, domain.JobTypeProductSync, ""},
		{TimerCustomerSync, specs.Customers, domain.JobTypeCustomerSync, domain.SourceERP},
		{TimerFullSync, specs.Full, domain.JobTypeFullSync, ""},
	}

	var timers []Timer
	for _, d := range defs {
		if d.spec == "" {
			continue
		}

		var targets []Resource
		for _, r := range resources {
			if d.only == "" || r.Source == d.only {
				targets = append(targets, r)
			}
		}
		if len(targets) == 0 {
			continue
		}

		timers = append(timers, Timer{
			Name: d.name,
			Spec: d.spec,
			Run:  enqueueFor(sub, d.jobType, targets, logger),
		})
	}
	return timers
}

// enqueueFor возвращает Run, ставящий задание jobType для каждого ресурса.
// Ошибка одного ресурса не мешает остальным.
func enqueueFor(sub Submitter, jobType domain.JobType, targets []Resource, logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		enqueued := 0

		for _, r := range targets {
			job := domain.NewSyncJob(jobType, r.Source, r.ResourceID, domain.JobOptions{})

			qj, err := sub.Submit(ctx, job)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", jobType, domain.ResourceKey(r.Source, r.ResourceID), err))
				continue
			}

			enqueued++
			logger.Debug("sync job enqueued",
				"job_id", qj.ID,
				"type", jobType,
				"source", r.Source,
				"resource_id", r.ResourceID,
			)
		}

		logger.Info("sync timer fired", "type", jobType, "enqueued", enqueued, "failed", len(errs))
		return errors.Join(errs...)
	}
}
