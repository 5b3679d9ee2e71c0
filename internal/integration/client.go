package integration

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shaiso/stocksync/internal/breaker"
	"github.com/shaiso/stocksync/internal/ratelimit"
	"github.com/shaiso/stocksync/internal/retry"
	"github.com/shaiso/stocksync/internal/telemetry"
)

// Config — конфигурация базового клиента интеграции.
type Config struct {
	// Name — имя интеграции: "pos" или "erp".
	Name    string
	BaseURL string
	APIKey  string

	// AuthHeader — заголовок для APIKey. Пусто — "Authorization: Bearer <key>".
	AuthHeader string

	// Timeout — таймаут HTTP-клиента (default: 30s).
	Timeout time.Duration

	// RateLimit запросов за RateWindow (default: 60 в минуту).
	RateLimit  int
	RateWindow time.Duration

	Breaker breaker.Config

	// Retry — политика повторов. Нулевое значение — retry.IntegrationPolicy.
	Retry *retry.Policy

	// HTTPClient заменяет клиент по умолчанию (для тестов).
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client — базовый клиент интеграции: транспорт и цепочка декораторов.
type Client struct {
	name      string
	transport *transport
	limiter   *ratelimit.Limiter
	breaker   *breaker.Breaker
	policy    retry.Policy
	do        Doer
	logger    *slog.Logger
}

// NewClient собирает клиент: rate limit → retry → breaker → transport.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "integration", "integration", cfg.Name)

	bcfg := cfg.Breaker
	if bcfg.Logger == nil {
		bcfg.Logger = logger
	}
	onChange := bcfg.OnStateChange
	bcfg.OnStateChange = func(name string, from, to breaker.State) {
		telemetry.BreakerState.WithLabelValues(name).Set(telemetry.BreakerStateValue(string(to)))
		if onChange != nil {
			onChange(name, from, to)
		}
	}
	telemetry.BreakerState.WithLabelValues(cfg.Name).Set(0)

	policy := retry.IntegrationPolicy(cfg.Name)
	if cfg.Retry != nil {
		policy = *cfg.Retry
	}
	policy.Logger = logger

	c := &Client{
		name:      cfg.Name,
		transport: newTransport(cfg, logger),
		limiter: ratelimit.New(ratelimit.Config{
			Name:   cfg.Name,
			Limit:  cfg.RateLimit,
			Window: cfg.RateWindow,
			Logger: logger,
		}),
		breaker: breaker.New(cfg.Name, bcfg),
		policy:  policy,
		logger:  logger,
	}
	c.do = c.chain()
	return c
}

func (c *Client) chain() Doer {
	return Chain(c.transport.Do,
		WithRateLimit(c.limiter),
		WithRetry(c.policy),
		WithBreaker(c.breaker),
	)
}

// WithRetryPolicy возвращает клиент с другой политикой повторов.
// Транспорт, лимитер и breaker общие с исходным клиентом.
func (c *Client) WithRetryPolicy(p retry.Policy) *Client {
	if p.Logger == nil {
		p.Logger = c.logger
	}
	clone := *c
	clone.policy = p
	clone.do = clone.chain()
	return &clone
}

// Name возвращает имя интеграции.
func (c *Client) Name() string {
	return c.name
}

// Breaker возвращает circuit breaker интеграции.
func (c *Client) Breaker() *breaker.Breaker {
	return c.breaker
}

// Do выполняет запрос через всю цепочку.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	return c.do(ctx, req)
}

// GetJSON выполняет GET и декодирует ответ в dest.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, dest any) error {
	resp, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return err
	}
	return resp.Decode(dest)
}

// PostJSON выполняет POST с JSON-телом и декодирует ответ в dest.
func (c *Client) PostJSON(ctx context.Context, path string, body, dest any) error {
	resp, err := c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
	if err != nil {
		return err
	}
	return resp.Decode(dest)
}

// Probe выполняет GET напрямую через транспорт, минуя повторы и breaker.
func (c *Client) Probe(ctx context.Context, path string) error {
	if _, err := c.transport.Do(ctx, &Request{Method: http.MethodGet, Path: path}); err != nil {
		return fmt.Errorf("health check %s: %w", c.name, err)
	}
	return nil
}

// Page — параметры пагинации.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) query() url.Values {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", fmt.Sprint(p.Limit))
	}
	q.Set("offset", fmt.Sprint(p.Offset))
	return q
}
