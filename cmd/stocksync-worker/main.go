// stocksync worker — синхронизирует каталог и остатки ERP/POS
// с центральным хранилищем.
//
// Процесс:
//   - Обрабатывает задания из приоритетных очередей (RabbitMQ или in-memory)
//   - Ставит периодические задания по cron-расписанию
//   - Выполняет обслуживание: health check, прогрев кэша, мониторинг очередей
//   - Рассылает алерты в чат и по email
//   - Обслуживает admin API, webhook'и, /healthz и /metrics
//
// Конфигурация: TOML-файл из STOCKSYNC_CONFIG и переменные окружения.
// Воркеры масштабируются горизонтально: ресурс защищён распределённым lock'ом.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "time/tzdata"

	"github.com/shaiso/stocksync/internal/alert"
	"github.com/shaiso/stocksync/internal/api"
	"github.com/shaiso/stocksync/internal/breaker"
	"github.com/shaiso/stocksync/internal/cache"
	"github.com/shaiso/stocksync/internal/config"
	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/integration"
	"github.com/shaiso/stocksync/internal/lock"
	"github.com/shaiso/stocksync/internal/mq"
	"github.com/shaiso/stocksync/internal/queue"
	"github.com/shaiso/stocksync/internal/repo"
	"github.com/shaiso/stocksync/internal/retry"
	"github.com/shaiso/stocksync/internal/scheduler"
	"github.com/shaiso/stocksync/internal/telemetry"
	"github.com/shaiso/stocksync/internal/worker"
)

// upstream — клиент внешней системы со всеми ролями, которые
// нужны воркеру, обслуживанию и admin API.
type upstream interface {
	worker.Upstream
	Health(ctx context.Context) error
	Breaker() *breaker.Breaker
}

func main() {
	if err := run(); err != nil {
		slog.Error("stocksync-worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("STOCKSYNC_CONFIG"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := telemetry.Configure(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting stocksync-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres
	if cfg.Database.Migrate {
		if err := repo.Migrate(cfg.Database.URL, logger); err != nil {
			return err
		}
	}
	pool, err := repo.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	store := repo.NewStore(pool, logger)
	logger.Info("database connected")

	// Redis
	var kv cache.Store
	if cfg.Redis.URL != "" {
		rc, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rc.Close()
		kv = cache.NewRedisStore(rc)
		logger.Info("redis connected")
	} else {
		logger.Warn("REDIS_URL not set, using in-process cache and locks")
		kv = cache.NewMemoryStore()
	}

	// RabbitMQ
	var broker queue.Broker
	checks := map[string]api.Pinger{"database": store, "cache": kv}
	if cfg.RabbitMQ.URL != "" {
		conn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		defer conn.Close()
		broker = queue.NewAMQPBroker(conn, logger)
		checks["broker"] = conn
		logger.Info("rabbitmq connected")
	} else {
		logger.Warn("RABBITMQ_URL not set, using in-process queues")
		broker = queue.NewMemoryBroker()
	}

	queues := queue.NewManager(broker, queue.DefaultDefinitions(), logger)
	submitter := worker.NewSubmitter(queues)

	// Кэши
	stockCache := cache.NewStockCache(kv, cache.StockConfig{
		TTL:               cfg.Cache.StockTTL,
		CriticalTTL:       cfg.Cache.CriticalTTL,
		CriticalThreshold: cfg.Cache.CriticalThreshold,
		Logger:            logger,
	})
	productCache := cache.NewProductCache(kv, cache.ProductConfig{
		TTL:           cfg.Cache.ProductTTL,
		NearCacheSize: cfg.Cache.NearCacheSize,
		NearCacheTTL:  cfg.Cache.NearCacheTTL,
		Logger:        logger,
	})
	statusCache := cache.NewSyncStatusCache(kv, cfg.Cache.StatusTTL, logger)

	// Алерты
	alerts := newAlertManager(cfg, store, kv, queues, logger)
	if cfg.Alerts.UseQueue {
		if err := alerts.Register(queues); err != nil {
			return err
		}
	}
	defer alerts.Wait()

	// Интеграции
	upstreams, critical := buildUpstreams(cfg, logger)

	w := worker.New(worker.Config{
		Upstreams:         workerUpstreams(upstreams),
		CriticalUpstreams: workerUpstreams(critical),
		Store:             store,
		Locker:            lock.New(kv, logger),
		Alerts:            alerts,
		Submitter:         submitter,
		StockCache:        stockCache,
		ProductCache:      productCache,
		StatusCache:       statusCache,
		PageSize:          cfg.Worker.PageSize,
		StockBatch:        cfg.Worker.StockBatch,
		BatchDelay:        cfg.Worker.BatchDelay,
		RecentWindow:      cfg.Worker.RecentWindow,
		LockTTL:           cfg.Worker.LockTTL,
		UpsertBatch:       cfg.Worker.UpsertBatch,
		Logger:            logger,
	})
	if err := w.Register(queues); err != nil {
		return err
	}

	if err := queues.Start(ctx); err != nil {
		return fmt.Errorf("start queues: %w", err)
	}
	defer queues.Stop()

	// Расписания
	sched := scheduler.New(scheduler.Config{Location: cfg.Location(), Logger: logger})
	timers := scheduler.SyncTimers(submitter, cfg.Resources, cfg.Schedule.Sync, logger)

	targets := make([]scheduler.HealthTarget, 0, len(upstreams))
	integrations := make([]api.Integration, 0, len(upstreams))
	for _, source := range []domain.Source{domain.SourcePOS, domain.SourceERP} {
		u, ok := upstreams[source]
		if !ok {
			continue
		}
		targets = append(targets, u)
		integrations = append(integrations, u)
	}
	maintenance := scheduler.NewMaintenance(scheduler.MaintenanceConfig{
		Integrations: targets,
		Alerts:       alerts,
		Statuses:     store,
		Stock:        store,
		StockCache:   stockCache,
		Queues:       queues,
		HotResources: cfg.Resources,
		Logger:       logger,
	})
	timers = append(timers, maintenance.Timers(cfg.Schedule.Maintenance)...)

	for _, t := range timers {
		if err := sched.Add(t); err != nil {
			return err
		}
	}
	sched.Start(ctx)
	defer sched.Stop()

	// Admin API
	handler := api.NewHandler(api.Config{
		Submitter:     submitter,
		Statuses:      store,
		Alerts:        store,
		Queues:        queues,
		Integrations:  integrations,
		Checks:        checks,
		WebhookSecret: cfg.Webhook.Secret,
		Logger:        logger,
	})
	server := api.NewServer(cfg.HTTP.Port, handler.Routes(), logger)

	err = server.Run(ctx)
	cancel()
	logger.Info("stocksync-worker stopping")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildUpstreams создаёт клиенты включённых интеграций. Для критичных
// остатков возвращаются копии с более агрессивной политикой повторов;
// лимитер и breaker у копий общие.
func buildUpstreams(cfg *config.Config, logger *slog.Logger) (map[domain.Source]upstream, map[domain.Source]upstream) {
	upstreams := make(map[domain.Source]upstream, 2)
	critical := make(map[domain.Source]upstream, 2)

	for _, source := range []domain.Source{domain.SourcePOS, domain.SourceERP} {
		ic := cfg.Integration(source)
		if !ic.Enabled {
			continue
		}

		base := integration.NewClient(integration.Config{
			Name:       string(source),
			BaseURL:    ic.BaseURL,
			APIKey:     ic.APIKey,
			AuthHeader: ic.AuthHeader,
			Timeout:    ic.Timeout,
			RateLimit:  ic.RateLimit,
			RateWindow: ic.RateWindow,
			Breaker: breaker.Config{
				FailureThreshold: ic.FailureThreshold,
				SuccessThreshold: ic.SuccessThreshold,
				Timeout:          ic.BreakerTimeout,
				CallTimeout:      ic.CallTimeout,
				Logger:           logger,
			},
			Logger: logger,
		})
		policy := retry.StockCriticalPolicy(string(source))

		switch source {
		case domain.SourcePOS:
			c := integration.NewPOSClient(base)
			upstreams[source] = c
			critical[source] = c.WithRetryPolicy(policy)
		case domain.SourceERP:
			c := integration.NewERPClient(base)
			upstreams[source] = c
			critical[source] = c.WithRetryPolicy(policy)
		}
		logger.Info("integration enabled", "integration", source, "base_url", ic.BaseURL)
	}

	return upstreams, critical
}

func workerUpstreams(in map[domain.Source]upstream) map[domain.Source]worker.Upstream {
	out := make(map[domain.Source]worker.Upstream, len(in))
	for source, u := range in {
		out[source] = u
	}
	return out
}

// newAlertManager собирает каналы доставки из конфигурации.
// Окно подавления 0 выключает подавление.
func newAlertManager(cfg *config.Config, store *repo.Store, kv cache.Store, queues *queue.Manager, logger *slog.Logger) *alert.Manager {
	ac := alert.Config{
		Store:          store,
		SuppressWindow: cfg.Alerts.SuppressWindow,
		Logger:         logger,
	}

	if cfg.Alerts.ChatWebhookURL != "" {
		ac.Chat = alert.NewChatChannel(cfg.Alerts.ChatWebhookURL, 0)
	}
	if smtp := cfg.Alerts.SMTP; smtp.Host != "" && len(smtp.To) > 0 {
		ac.Email = alert.NewEmailChannel(alert.EmailConfig{
			Host:     smtp.Host,
			Port:     smtp.Port,
			Username: smtp.Username,
			Password: smtp.Password,
			From:     smtp.From,
			To:       smtp.To,
		}, nil)
	}
	if cfg.Alerts.SuppressWindow > 0 {
		ac.Suppress = kv
	}
	if cfg.Alerts.UseQueue {
		ac.Queue = queues
	}

	return alert.NewManager(ac)
}
