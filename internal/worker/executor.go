package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/repo"
)

// Processor выполняет задание одного типа. Вызывается под lock'ом ресурса.
type Processor func(ctx context.Context, run *Run) error

// Run — состояние выполнения одного задания.
type Run struct {
	Job      *domain.SyncJob
	Upstream Upstream
	Status   *domain.SyncStatus

	// Products, Stock, Customers — итоги записи по сущностям.
	Products  repo.UpsertResult
	Stock     repo.UpsertResult
	Customers repo.UpsertResult

	// NoData — товары, по которым upstream не вернул остаток.
	NoData int

	// Alerts — число поднятых алертов.
	Alerts int

	// Recheck — товары с нулевым остатком. После освобождения lock'а
	// по ним ставится задание critical-stock.
	Recheck []string
}

// Failed возвращает число строк, которые не удалось записать.
func (r *Run) Failed() int {
	return r.Products.FailedCount + r.Stock.FailedCount + r.Customers.FailedCount
}

// Registry — реестр processor'ов по типу задания.
type Registry struct {
	processors map[domain.JobType]Processor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{processors: make(map[domain.JobType]Processor)}
}

// Register добавляет processor для типа задания.
func (r *Registry) Register(jobType domain.JobType, p Processor) {
	r.processors[jobType] = p
}

// Get возвращает processor для типа задания.
func (r *Registry) Get(jobType domain.JobType) (Processor, error) {
	p, ok := r.processors[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}
	return p, nil
}
