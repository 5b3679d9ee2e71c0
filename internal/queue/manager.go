package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Manager владеет очередями и запускает их обработчики.
type Manager struct {
	broker Broker
	logger *slog.Logger

	mu      sync.Mutex
	queues  map[string]*Queue
	order   []string
	started bool

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewManager создаёт очереди по определениям.
func NewManager(broker Broker, defs []Definition, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "queue")

	m := &Manager{
		broker: broker,
		logger: logger,
		queues: make(map[string]*Queue, len(defs)),
	}
	for _, def := range defs {
		m.queues[def.Name] = newQueue(def, broker, logger)
		m.order = append(m.order, def.Name)
	}
	return m
}

// RegisterProcessor назначает обработчик очереди. Вызывается один раз
// на очередь до Start.
func (m *Manager) RegisterProcessor(queueName string, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrStarted
	}

	q, ok := m.queues[queueName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queueName)
	}
	if q.handler != nil {
		return fmt.Errorf("%w: %s", ErrProcessorRegistered, queueName)
	}

	q.handler = h
	m.logger.Info("processor registered", "queue", queueName)
	return nil
}

// Queue возвращает очередь по имени.
func (m *Manager) Queue(name string) (*Queue, error) {
	q, ok := m.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}
	return q, nil
}

// Names возвращает имена очередей в порядке определения.
func (m *Manager) Names() []string {
	return append([]string(nil), m.order...)
}

// Add ставит задачу в очередь queueName.
func (m *Manager) Add(ctx context.Context, queueName, jobName string, payload any, opts AddOptions) (*Job, error) {
	q, err := m.Queue(queueName)
	if err != nil {
		return nil, err
	}
	return q.Add(ctx, jobName, payload, opts)
}

// Start объявляет очереди у брокера и запускает обработчики.
// Очереди без обработчика работают только на постановку.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrStarted
	}

	for _, name := range m.order {
		if err := m.broker.Declare(ctx, m.queues[name].def); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel
	m.started = true

	for _, name := range m.order {
		q := m.queues[name]
		if q.handler == nil {
			m.logger.Warn("queue has no processor, producing only", "queue", name, "error", ErrNoProcessor)
			continue
		}

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			err := m.broker.Consume(ctx, q.def.Name, q.def.Concurrency, q.process)
			if err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("queue consumer stopped", "queue", q.def.Name, "error", err)
			}
		}()

		m.logger.Info("queue started",
			"queue", name,
			"concurrency", q.def.Concurrency,
			"attempts", q.def.Attempts,
			"backoff", q.def.Backoff.Type,
		)
	}

	return nil
}

// Stop останавливает обработчики и ждёт текущие задачи.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancelFunc
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.logger.Info("queues stopped")
}

// Stats возвращает состояние всех очередей.
func (m *Manager) Stats(ctx context.Context) ([]Stats, error) {
	out := make([]Stats, 0, len(m.order))
	var errs []error

	for _, name := range m.order {
		s, err := m.queues[name].Stats(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		out = append(out, s)
	}
	return out, errors.Join(errs...)
}
