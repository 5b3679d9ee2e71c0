// Package config загружает конфигурацию stocksync.
//
// Порядок применения:
//  1. DefaultConfig
//  2. TOML-файл (если указан)
//  3. переменные окружения
//  4. флаги командной строки (на стороне вызывающего)
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/repo"
	"github.com/shaiso/stocksync/internal/scheduler"
	"github.com/shaiso/stocksync/internal/telemetry"
)

// Config — конфигурация процесса.
type Config struct {
	Database  DatabaseConfig       `toml:"database"`
	Redis     RedisConfig          `toml:"redis"`
	RabbitMQ  RabbitMQConfig       `toml:"rabbitmq"`
	HTTP      HTTPConfig           `toml:"http"`
	Webhook   WebhookConfig        `toml:"webhook"`
	POS       IntegrationConfig    `toml:"pos"`
	ERP       IntegrationConfig    `toml:"erp"`
	Resources []scheduler.Resource `toml:"resources"`
	Worker    WorkerConfig         `toml:"worker"`
	Cache     CacheConfig          `toml:"cache"`
	Schedule  ScheduleConfig       `toml:"schedule"`
	Alerts    AlertsConfig         `toml:"alerts"`
	Logging   LoggingConfig        `toml:"logging"`
}

// DatabaseConfig — центральное хранилище PostgreSQL.
type DatabaseConfig struct {
	URL      string `toml:"url"`
	MaxConns int32  `toml:"max_conns"`
	Migrate  bool   `toml:"migrate"`
}

// RedisConfig — хранилище кэша и блокировок. Пустой URL — in-memory store
// (только для одного процесса).
type RedisConfig struct {
	URL string `toml:"url"`
}

// RabbitMQConfig — брокер очередей. Пустой URL — in-memory broker.
type RabbitMQConfig struct {
	URL string `toml:"url"`
}

// HTTPConfig — admin API.
type HTTPConfig struct {
	Port int `toml:"port"`
}

// WebhookConfig — приём webhook'ов.
type WebhookConfig struct {
	Secret string `toml:"secret"`
}

// IntegrationConfig — клиент ERP или POS.
type IntegrationConfig struct {
	Enabled    bool          `toml:"enabled"`
	BaseURL    string        `toml:"base_url"`
	APIKey     string        `toml:"api_key"`
	AuthHeader string        `toml:"auth_header"`
	Timeout    time.Duration `toml:"timeout"`

	RateLimit  int           `toml:"rate_limit"`
	RateWindow time.Duration `toml:"rate_window"`

	FailureThreshold int           `toml:"failure_threshold"`
	SuccessThreshold int           `toml:"success_threshold"`
	BreakerTimeout   time.Duration `toml:"breaker_timeout"`
	CallTimeout      time.Duration `toml:"call_timeout"`
}

// WorkerConfig — параметры Sync Worker.
type WorkerConfig struct {
	PageSize     int           `toml:"page_size"`
	StockBatch   int           `toml:"stock_batch"`
	BatchDelay   time.Duration `toml:"batch_delay"`
	RecentWindow time.Duration `toml:"recent_window"`
	LockTTL      time.Duration `toml:"lock_ttl"`
	UpsertBatch  int           `toml:"upsert_batch"`
}

// CacheConfig — TTL доменных кэшей.
type CacheConfig struct {
	StockTTL          time.Duration `toml:"stock_ttl"`
	CriticalTTL       time.Duration `toml:"critical_ttl"`
	CriticalThreshold int           `toml:"critical_threshold"`
	ProductTTL        time.Duration `toml:"product_ttl"`
	NearCacheSize     int           `toml:"near_cache_size"`
	NearCacheTTL      time.Duration `toml:"near_cache_ttl"`
	StatusTTL         time.Duration `toml:"status_ttl"`
}

// ScheduleConfig — расписания таймеров.
type ScheduleConfig struct {
	Timezone    string                     `toml:"timezone"`
	Sync        scheduler.SyncSpecs        `toml:"sync"`
	Maintenance scheduler.MaintenanceSpecs `toml:"maintenance"`
}

// AlertsConfig — каналы алертов.
type AlertsConfig struct {
	ChatWebhookURL string `toml:"chat_webhook_url"`

	// SuppressWindow — окно подавления повторов. 0 — без подавления.
	SuppressWindow time.Duration `toml:"suppress_window"`

	// UseQueue — доставлять через очередь notifications.
	UseQueue bool `toml:"use_queue"`

	SMTP SMTPConfig `toml:"smtp"`
}

// SMTPConfig — email канал. Пустой Host — канал выключен.
type SMTPConfig struct {
	Host     string   `toml:"host"`
	Port     int      `toml:"port"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	From     string   `toml:"from"`
	To       []string `toml:"to"`
}

// LoggingConfig — параметры логирования.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() *Config {
	integration := IntegrationConfig{
		Timeout:          30 * time.Second,
		RateLimit:        60,
		RateWindow:       time.Minute,
		FailureThreshold: 5,
		SuccessThreshold: 3,
		BreakerTimeout:   time.Minute,
	}

	return &Config{
		Database: DatabaseConfig{
			URL:      repo.DefaultDSN,
			MaxConns: 10,
			Migrate:  true,
		},
		HTTP: HTTPConfig{Port: 8080},
		POS:  integration,
		ERP:  integration,
		Worker: WorkerConfig{
			PageSize:     100,
			StockBatch:   50,
			BatchDelay:   100 * time.Millisecond,
			RecentWindow: time.Minute,
			LockTTL:      10 * time.Minute,
			UpsertBatch:  500,
		},
		Cache: CacheConfig{
			StockTTL:          5 * time.Minute,
			CriticalTTL:       time.Minute,
			CriticalThreshold: 5,
			ProductTTL:        time.Hour,
			NearCacheSize:     10000,
			NearCacheTTL:      time.Minute,
			StatusTTL:         10 * time.Minute,
		},
		Schedule: ScheduleConfig{
			Timezone:    "UTC",
			Sync:        scheduler.DefaultSyncSpecs(),
			Maintenance: scheduler.DefaultMaintenanceSpecs(),
		},
		Alerts: AlertsConfig{
			SuppressWindow: 15 * time.Minute,
			SMTP:           SMTPConfig{Port: 587},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "json",
		},
	}
}

// LoadFromFile читает TOML-файл поверх значений по умолчанию.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys: %v", undecoded)
	}

	return cfg, nil
}

// Load собирает конфигурацию: значения по умолчанию, файл (если path
// не пуст), затем окружение.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv переопределяет значения переменными окружения.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dest *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dest = v
		}
	}
	num := func(key string, dest *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dest = n
		return nil
	}

	str("DB_URL", &c.Database.URL)
	str("REDIS_URL", &c.Redis.URL)
	str("RABBITMQ_URL", &c.RabbitMQ.URL)
	str("WEBHOOK_SECRET", &c.Webhook.Secret)

	str("POS_BASE_URL", &c.POS.BaseURL)
	str("POS_API_KEY", &c.POS.APIKey)
	str("ERP_BASE_URL", &c.ERP.BaseURL)
	str("ERP_API_KEY", &c.ERP.APIKey)

	str("CHAT_WEBHOOK_URL", &c.Alerts.ChatWebhookURL)
	str("SMTP_HOST", &c.Alerts.SMTP.Host)
	str("SMTP_USERNAME", &c.Alerts.SMTP.Username)
	str("SMTP_PASSWORD", &c.Alerts.SMTP.Password)
	str("SMTP_FROM", &c.Alerts.SMTP.From)
	if v, ok := lookup("SMTP_TO"); ok && v != "" {
		c.Alerts.SMTP.To = splitList(v)
	}

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)

	return errors.Join(
		num("HTTP_PORT", &c.HTTP.Port),
		num("SMTP_PORT", &c.Alerts.SMTP.Port),
	)
}

// Validate проверяет конфигурацию и возвращает все найденные ошибки.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Database.URL == "" {
		add("database url must be specified")
	}
	if c.Database.MaxConns <= 0 {
		add("database max_conns must be positive")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		add("HTTP port must be between 1 and 65535")
	}

	if !c.POS.Enabled && !c.ERP.Enabled {
		add("at least one integration (pos, erp) must be enabled")
	}
	for name, in := range map[string]IntegrationConfig{"pos": c.POS, "erp": c.ERP} {
		if in.Enabled && in.BaseURL == "" {
			add("%s base_url must be specified", name)
		}
	}

	for i, r := range c.Resources {
		if !r.Source.Valid() {
			add("resources[%d]: unknown source %q", i, r.Source)
			continue
		}
		if r.ResourceID == "" {
			add("resources[%d]: resource_id must be specified", i)
		}
		if !c.Integration(r.Source).Enabled {
			add("resources[%d]: integration %s is disabled", i, r.Source)
		}
	}

	if c.Worker.PageSize <= 0 || c.Worker.StockBatch <= 0 || c.Worker.UpsertBatch <= 0 {
		add("worker page_size, stock_batch and upsert_batch must be positive")
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		add("schedule timezone: %w", err)
	}
	specs := map[string]string{
		"sync.stock":          c.Schedule.Sync.Stock,
		"sync.critical":       c.Schedule.Sync.Critical,
		"sync.products":       c.Schedule.Sync.Products,
		"sync.customers":      c.Schedule.Sync.Customers,
		"sync.full":           c.Schedule.Sync.Full,
		"maintenance.health":  c.Schedule.Maintenance.Health,
		"maintenance.warmup":  c.Schedule.Maintenance.Warmup,
		"maintenance.cleanup": c.Schedule.Maintenance.Cleanup,
		"maintenance.metrics": c.Schedule.Maintenance.Metrics,
		"maintenance.monitor": c.Schedule.Maintenance.Monitor,
	}
	for name, spec := range specs {
		if spec == "" {
			continue
		}
		if err := scheduler.ValidateSpec(spec); err != nil {
			add("schedule %s: %w", name, err)
		}
	}

	if c.Alerts.SuppressWindow < 0 {
		add("alerts suppress_window must not be negative")
	}
	if smtp := c.Alerts.SMTP; smtp.Host != "" {
		if smtp.From == "" || len(smtp.To) == 0 {
			add("alerts smtp requires from and to")
		}
		if smtp.Port <= 0 || smtp.Port > 65535 {
			add("alerts smtp port must be between 1 and 65535")
		}
	}

	if !telemetry.ValidLevel(c.Logging.Level) {
		add("invalid log level: %s (must be DEBUG, INFO, WARN or ERROR)", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		add("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	return errors.Join(errs...)
}

// Integration возвращает конфигурацию клиента источника.
func (c *Config) Integration(source domain.Source) IntegrationConfig {
	if source == domain.SourceERP {
		return c.ERP
	}
	return c.POS
}

// Location возвращает часовой пояс расписаний.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
