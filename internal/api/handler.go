package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/stocksync/internal/breaker"
	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/queue"
	"github.com/shaiso/stocksync/internal/repo"
)

// Submitter ставит задания синхронизации в очереди.
type Submitter interface {
	Submit(ctx context.Context, job *domain.SyncJob) (*queue.Job, error)
}

// StatusReader читает статус синхронизации ресурса.
type StatusReader interface {
	GetSyncStatus(ctx context.Context, source domain.Source, resourceID string) (*domain.SyncStatus, error)
}

// AlertReader читает журнал алертов.
type AlertReader interface {
	ListAlerts(ctx context.Context, filter repo.AlertFilter) ([]domain.Alert, error)
}

// QueueStatser — статистика очередей.
type QueueStatser interface {
	Stats(ctx context.Context) ([]queue.Stats, error)
}

// Integration — upstream-клиент с circuit breaker'ом.
type Integration interface {
	Source() domain.Source
	Health(ctx context.Context) error
	Breaker() *breaker.Breaker
}

// Pinger — зависимость, проверяемая /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	submitter     Submitter
	statuses      StatusReader
	alerts        AlertReader
	queues        QueueStatser
	integrations  []Integration
	checks        map[string]Pinger
	webhookSecret []byte
	logger        *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Submitter    Submitter
	Statuses     StatusReader
	Alerts       AlertReader
	Queues       QueueStatser
	Integrations []Integration

	// Checks — зависимости для /healthz по имени (database, cache).
	Checks map[string]Pinger

	// WebhookSecret — общий секрет HMAC-подписи webhook'ов.
	// Пустой секрет отклоняет все webhook'и.
	WebhookSecret string

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		submitter:     cfg.Submitter,
		statuses:      cfg.Statuses,
		alerts:        cfg.Alerts,
		queues:        cfg.Queues,
		integrations:  cfg.Integrations,
		checks:        cfg.Checks,
		webhookSecret: []byte(cfg.WebhookSecret),
		logger:        logger.With("component", "api"),
	}
}

// integration возвращает интеграцию по имени источника.
func (h *Handler) integration(name string) (Integration, bool) {
	for _, in := range h.integrations {
		if string(in.Source()) == name {
			return in, true
		}
	}
	return nil, false
}
