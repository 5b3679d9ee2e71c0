package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/stocksync/internal/breaker"
	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/queue"
)

// Sync DTOs

// TriggerOptions — параметры задания из запроса.
type TriggerOptions struct {
	BatchSize  int      `json:"batch_size,omitempty"`
	Force      bool     `json:"force,omitempty"`
	Priority   int      `json:"priority,omitempty"`
	Offset     int      `json:"offset,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	ProductIDs []string `json:"product_ids,omitempty"`
}

// TriggerRequest — запрос на запуск синхронизации.
type TriggerRequest struct {
	Type       domain.JobType `json:"type"`
	Source     domain.Source  `json:"source"`
	ResourceID string         `json:"resource_id"`
	Options    TriggerOptions `json:"options"`
}

// ToJob конвертирует запрос в domain.SyncJob.
func (r TriggerRequest) ToJob() *domain.SyncJob {
	job := domain.NewSyncJob(r.Type, r.Source, r.ResourceID, domain.JobOptions{
		BatchSize:  r.Options.BatchSize,
		Force:      r.Options.Force,
		Offset:     r.Options.Offset,
		Limit:      r.Options.Limit,
		ProductIDs: r.Options.ProductIDs,
	})
	job.Priority = r.Options.Priority
	return job
}

// TriggerResponse — ответ о постановке задания.
type TriggerResponse struct {
	JobID      uuid.UUID `json:"job_id"`
	QueueJobID string    `json:"queue_job_id"`
	Queue      string    `json:"queue"`
}

// Queue DTOs

// QueueResponse — состояние очереди.
type QueueResponse struct {
	queue.Stats
	FailureRate float64 `json:"failure_rate"`
}

// QueueFromStats конвертирует queue.Stats в QueueResponse.
func QueueFromStats(s queue.Stats) QueueResponse {
	return QueueResponse{Stats: s, FailureRate: s.FailureRate()}
}

// Integration DTOs

// IntegrationResponse — состояние интеграции.
type IntegrationResponse struct {
	Name                string        `json:"name"`
	State               breaker.State `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	NextAttempt         *time.Time    `json:"next_attempt,omitempty"`
	Healthy             *bool         `json:"healthy,omitempty"`
	Error               string        `json:"error,omitempty"`
}

// IntegrationFromSnapshot конвертирует breaker.Snapshot в IntegrationResponse.
func IntegrationFromSnapshot(name string, s breaker.Snapshot) IntegrationResponse {
	resp := IntegrationResponse{
		Name:                name,
		State:               s.State,
		ConsecutiveFailures: s.ConsecutiveFailures,
	}
	if !s.NextAttempt.IsZero() {
		next := s.NextAttempt
		resp.NextAttempt = &next
	}
	return resp
}

// Webhook DTOs

// Webhook events.
const (
	EventStockUpdated   = "stock.updated"
	EventStockDepleted  = "stock.depleted"
	EventProductCreated = "product.created"
	EventProductUpdated = "product.updated"
)

// WebhookEvent — событие изменения от ERP/POS.
type WebhookEvent struct {
	Event      string   `json:"event"`
	ResourceID string   `json:"resource_id"`
	ProductIDs []string `json:"product_ids,omitempty"`
}

// WebhookResponse — ответ на webhook.
type WebhookResponse struct {
	Status string    `json:"status"`
	JobID  uuid.UUID `json:"job_id,omitzero"`
	Queue  string    `json:"queue,omitempty"`
}
