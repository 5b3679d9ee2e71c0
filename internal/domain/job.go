package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType — тип задания синхронизации.
type JobType string

const (
	// JobTypeFullSync — полный проход: каталог + остатки.
	JobTypeFullSync JobType = "full_sync"

	// JobTypeIncrementalSync — остатки, изменившиеся с последней успешной синхронизации.
	JobTypeIncrementalSync JobType = "incremental_sync"

	// JobTypeStockSync — полное обновление остатков известных товаров.
	JobTypeStockSync JobType = "stock_sync"

	// JobTypeProductSync — постраничная загрузка каталога.
	JobTypeProductSync JobType = "product_sync"

	// JobTypeCustomerSync — постраничная загрузка клиентов (только ERP).
	JobTypeCustomerSync JobType = "customer_sync"

	// JobTypeCriticalStock — повторная проверка товаров с нулевым остатком.
	// Выполняется в очереди critical-stock.
	JobTypeCriticalStock JobType = "critical_stock"
)

// Valid проверяет, что тип задания известен.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeFullSync, JobTypeIncrementalSync, JobTypeStockSync,
		JobTypeProductSync, JobTypeCustomerSync, JobTypeCriticalStock:
		return true
	default:
		return false
	}
}

// Source — внешняя система-источник данных.
type Source string

const (
	// SourcePOS — on-premises система кассовых терминалов.
	SourcePOS Source = "pos"

	// SourceERP — ERP-система предприятия.
	SourceERP Source = "erp"
)

// Valid проверяет, что источник известен.
func (s Source) Valid() bool {
	return s == SourcePOS || s == SourceERP
}

// JobOptions — параметры выполнения задания.
type JobOptions struct {
	// BatchSize — размер страницы/пачки. 0 — значение по умолчанию воркера.
	BatchSize int `json:"batch_size,omitempty"`

	// Force — игнорировать недавнюю успешную синхронизацию и delta-метку.
	// Lock ресурса при этом всё равно обязателен.
	Force bool `json:"force,omitempty"`

	// Offset и Limit ограничивают обход каталога.
	Offset int `json:"offset,omitempty"`
	Limit  int `json:"limit,omitempty"`

	// ProductIDs сужает синхронизацию остатков до указанных внешних ID.
	ProductIDs []string `json:"product_ids,omitempty"`
}

// SyncJob — задание синхронизации одного ресурса внешней системы.
//
// Создаётся Scheduler'ом, webhook'ом или вручную через API.
// Потребляется очередью; удаляется после финального завершения.
type SyncJob struct {
	// ID — уникальный идентификатор задания.
	ID uuid.UUID `json:"id"`

	// Type — тип задания.
	Type JobType `json:"type"`

	// Source — внешняя система.
	Source Source `json:"source"`

	// ResourceID — идентификатор ресурса (магазин, склад) во внешней системе.
	ResourceID string `json:"resource_id"`

	// Priority — приоритет в очереди (больше — раньше).
	Priority int `json:"priority"`

	// Options — параметры выполнения.
	Options JobOptions `json:"options"`

	// Attempt — номер текущей попытки (начиная с 1), заполняется очередью.
	Attempt int `json:"attempt,omitempty"`

	// MaxAttempts — лимит попыток очереди.
	MaxAttempts int `json:"max_attempts,omitempty"`

	// CreatedAt — время создания задания.
	CreatedAt time.Time `json:"created_at"`
}

// NewSyncJob создаёт задание с новым ID.
func NewSyncJob(jobType JobType, source Source, resourceID string, opts JobOptions) *SyncJob {
	return &SyncJob{
		ID:         uuid.New(),
		Type:       jobType,
		Source:     source,
		ResourceID: resourceID,
		Options:    opts,
		CreatedAt:  time.Now().UTC(),
	}
}

// Validate проверяет обязательные поля задания.
func (j *SyncJob) Validate() error {
	if !j.Type.Valid() {
		return fmt.Errorf("%w: unknown job type %q", ErrInvalidJob, j.Type)
	}
	if !j.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidJob, j.Source)
	}
	if j.ResourceID == "" {
		return fmt.Errorf("%w: resource_id is required", ErrInvalidJob)
	}
	if j.Options.BatchSize < 0 || j.Options.Offset < 0 || j.Options.Limit < 0 {
		return fmt.Errorf("%w: negative batch_size/offset/limit", ErrInvalidJob)
	}
	return nil
}

// LockKey возвращает ключ lock'а ресурса.
// Все типы заданий одного ресурса сериализуются одним lock'ом.
func (j *SyncJob) LockKey() string {
	return ResourceKey(j.Source, j.ResourceID)
}

// ResourceKey — составной ключ ресурса "source:resource".
func ResourceKey(source Source, resourceID string) string {
	return string(source) + ":" + resourceID
}
