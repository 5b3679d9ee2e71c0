package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/stocksync/internal/cache"
	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/queue"
	"github.com/shaiso/stocksync/internal/retry"
	"github.com/shaiso/stocksync/internal/telemetry"
)

const defaultDeliveryTimeout = 30 * time.Second

// Store сохраняет алерты.
type Store interface {
	InsertAlert(ctx context.Context, a *domain.Alert) error
}

// Enqueuer ставит задачи в очереди.
type Enqueuer interface {
	Add(ctx context.Context, queueName, jobName string, payload any, opts queue.AddOptions) (*queue.Job, error)
}

// Config — конфигурация Manager.
type Config struct {
	// Store — журнал алертов (опционально).
	Store Store

	// Chat и Email — каналы доставки. nil — канал не настроен.
	Chat  Channel
	Email Channel

	// Suppress — хранилище ключей подавления. nil — подавление выключено.
	Suppress cache.Store

	// SuppressWindow — окно подавления (default: 15m).
	SuppressWindow time.Duration

	// Queue — очередь notifications (опционально). Если задана,
	// Send только ставит алерт в очередь.
	Queue Enqueuer

	// DeliveryTimeout — таймаут доставки в один канал (default: 30s).
	DeliveryTimeout time.Duration

	Logger *slog.Logger
}

// Manager маршрутизирует алерты по каналам.
type Manager struct {
	store    Store
	chat     Channel
	email    Channel
	suppress *suppressor
	queue    Enqueuer
	timeout  time.Duration
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewManager создаёт Manager.
func NewManager(cfg Config) *Manager {
	if cfg.SuppressWindow <= 0 {
		cfg.SuppressWindow = DefaultSuppressWindow
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	m := &Manager{
		store:   cfg.Store,
		chat:    cfg.Chat,
		email:   cfg.Email,
		queue:   cfg.Queue,
		timeout: cfg.DeliveryTimeout,
		logger:  cfg.Logger.With("component", "alert"),
	}
	if cfg.Suppress != nil {
		m.suppress = &suppressor{store: cfg.Suppress, window: cfg.SuppressWindow}
	}
	return m
}

// Send поднимает алерт: подавление повторов, запись в журнал, затем
// доставка. Доставка асинхронная, её ошибки только логируются.
// Ошибка возвращается, если алерт не удалось сохранить или поставить
// в очередь.
func (m *Manager) Send(ctx context.Context, a *domain.Alert) error {
	if !a.Severity.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSeverity, a.Severity)
	}

	logger := m.logger.With("alert_id", a.ID.String(), "type", a.Type, "severity", a.Severity)

	allowed, err := m.suppress.allow(ctx, a)
	if err != nil {
		logger.Warn("suppression check failed, sending anyway", "error", err)
		allowed = true
	}
	if !allowed {
		logger.Debug("alert suppressed")
		return nil
	}

	telemetry.AlertsSent.WithLabelValues(a.Type, string(a.Severity)).Inc()

	var persistErr error
	if m.store != nil {
		if err := m.store.InsertAlert(ctx, a); err != nil {
			logger.Error("failed to persist alert", "error", err)
			persistErr = fmt.Errorf("persist alert: %w", err)
		}
	}

	if m.queue != nil {
		if err := m.enqueue(ctx, a); err != nil {
			return errors.Join(persistErr, err)
		}
		return persistErr
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		if err := m.Deliver(context.WithoutCancel(ctx), a); err != nil {
			logger.Warn("alert delivery incomplete", "error", err)
		}
	}()

	return persistErr
}

// Deliver отправляет алерт во все каналы его severity параллельно и
// ждёт их. Возвращает объединённые ошибки каналов.
func (m *Manager) Deliver(ctx context.Context, a *domain.Alert) error {
	channels := m.channelsFor(a.Severity)
	if len(channels) == 0 {
		m.logger.Warn("no alert channels configured", "type", a.Type, "severity", a.Severity)
		return nil
	}

	errs := make([]error, len(channels))
	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.deliverOne(ctx, ch, a)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (m *Manager) deliverOne(ctx context.Context, ch Channel, a *domain.Alert) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := ch.Deliver(ctx, a); err != nil {
		telemetry.AlertDeliveries.WithLabelValues(ch.Name(), "error").Inc()
		m.logger.Warn("alert channel failed", "channel", ch.Name(), "alert_id", a.ID.String(), "error", err)
		return err
	}

	telemetry.AlertDeliveries.WithLabelValues(ch.Name(), "ok").Inc()
	m.logger.Debug("alert delivered", "channel", ch.Name(), "alert_id", a.ID.String())
	return nil
}

func (m *Manager) channelsFor(s domain.Severity) []Channel {
	var out []Channel
	if m.chat != nil {
		out = append(out, m.chat)
	}
	if m.email != nil && needsEmail(s) {
		out = append(out, m.email)
	}
	return out
}

// notification — задача очереди notifications: один алерт для одного
// канала. Повтор упавшей задачи не задевает остальные каналы.
type notification struct {
	Channel string        `json:"channel"`
	Alert   *domain.Alert `json:"alert"`
}

// enqueue ставит в очередь по задаче на каждый канал severity алерта.
func (m *Manager) enqueue(ctx context.Context, a *domain.Alert) error {
	channels := m.channelsFor(a.Severity)
	if len(channels) == 0 {
		m.logger.Warn("no alert channels configured", "type", a.Type, "severity", a.Severity)
		return nil
	}

	var errs []error
	for _, ch := range channels {
		n := notification{Channel: ch.Name(), Alert: a}
		if _, err := m.queue.Add(ctx, queue.QueueNotifications, a.Type, n, queue.AddOptions{Priority: a.Severity.Rank()}); err != nil {
			errs = append(errs, fmt.Errorf("enqueue alert for %s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) channelByName(name string) Channel {
	for _, ch := range []Channel{m.chat, m.email} {
		if ch != nil && ch.Name() == name {
			return ch
		}
	}
	return nil
}

// Processor — обработчик очереди notifications. Доставляет алерт
// в один канал; ошибка канала уходит на повтор очереди.
func (m *Manager) Processor() queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var n notification
		if err := job.Decode(&n); err != nil {
			return retry.Permanent(fmt.Errorf("decode alert: %w", err))
		}
		if n.Alert == nil {
			return retry.Permanent(fmt.Errorf("notification %s: empty alert", job.ID))
		}

		ch := m.channelByName(n.Channel)
		if ch == nil {
			return retry.Permanent(fmt.Errorf("notification %s: channel %q not configured", job.ID, n.Channel))
		}
		return m.deliverOne(ctx, ch, n.Alert)
	}
}

// Register назначает Processor обработчиком очереди notifications.
func (m *Manager) Register(qm *queue.Manager) error {
	return qm.RegisterProcessor(queue.QueueNotifications, m.Processor())
}

// Wait ждёт завершения асинхронных доставок.
func (m *Manager) Wait() {
	m.wg.Wait()
}
