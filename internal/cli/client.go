package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types ---

// TriggerResponse — результат постановки задания в очередь.
type TriggerResponse struct {
	JobID      string `json:"job_id"`
	QueueJobID string `json:"queue_job_id"`
	Queue      string `json:"queue"`
}

// SyncStatusResponse — состояние синхронизации ресурса.
type SyncStatusResponse struct {
	Source          string  `json:"source"`
	ResourceID      string  `json:"resource_id"`
	Status          string  `json:"status"`
	LastProductSync *string `json:"last_product_sync,omitempty"`
	LastStockSync   *string `json:"last_stock_sync,omitempty"`
	ProductsSynced  int     `json:"products_synced"`
	StockSynced     int     `json:"stock_synced"`
	ErrorCount      int     `json:"error_count"`
	LastError       string  `json:"last_error,omitempty"`
	UpdatedAt       string  `json:"updated_at"`
}

// QueueResponse — счётчики очереди.
type QueueResponse struct {
	Name        string  `json:"name"`
	Waiting     int     `json:"waiting"`
	Active      int     `json:"active"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	Delayed     int     `json:"delayed"`
	Dead        int     `json:"dead"`
	FailureRate float64 `json:"failure_rate"`
}

// IntegrationResponse — состояние circuit breaker'а интеграции.
type IntegrationResponse struct {
	Name                string  `json:"name"`
	State               string  `json:"state"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	NextAttempt         *string `json:"next_attempt,omitempty"`
	Healthy             *bool   `json:"healthy,omitempty"`
	Error               string  `json:"error,omitempty"`
}

// AlertResponse — запись журнала алертов.
type AlertResponse struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// HealthResponse — ответ /healthz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// --- Request types ---

// TriggerOptions — параметры задания.
type TriggerOptions struct {
	BatchSize  int      `json:"batch_size,omitempty"`
	Force      bool     `json:"force,omitempty"`
	Priority   int      `json:"priority,omitempty"`
	Offset     int      `json:"offset,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	ProductIDs []string `json:"product_ids,omitempty"`
}

// TriggerRequest — запрос на ручной запуск синхронизации.
type TriggerRequest struct {
	Type       string         `json:"type"`
	Source     string         `json:"source"`
	ResourceID string         `json:"resource_id"`
	Options    TriggerOptions `json:"options"`
}

// ListAlertsOpts — фильтры журнала алертов.
type ListAlertsOpts struct {
	Type     string
	Severity string
	Limit    int
	Offset   int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент административного API stocksync.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт Client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Sync ---

// TriggerSync ставит задание синхронизации в очередь.
func (c *Client) TriggerSync(ctx context.Context, req TriggerRequest) (*TriggerResponse, error) {
	var resp TriggerResponse
	err := c.post(ctx, "/api/v1/sync/trigger", req, &resp)
	return &resp, err
}

// SyncStatus возвращает состояние синхронизации ресурса.
func (c *Client) SyncStatus(ctx context.Context, source, resourceID string) (*SyncStatusResponse, error) {
	var status SyncStatusResponse
	path := "/api/v1/sync/status/" + url.PathEscape(source) + "/" + url.PathEscape(resourceID)
	err := c.get(ctx, path, &status)
	return &status, err
}

// --- Operations ---

// ListQueues возвращает счётчики очередей.
func (c *Client) ListQueues(ctx context.Context) ([]QueueResponse, error) {
	var queues []QueueResponse
	err := c.list(ctx, "/api/v1/queues", nil, &queues)
	return queues, err
}

// ListIntegrations возвращает состояние интеграций.
// probe=true дополнительно запрашивает health check каждой.
func (c *Client) ListIntegrations(ctx context.Context, probe bool) ([]IntegrationResponse, error) {
	params := url.Values{}
	if probe {
		params.Set("probe", "true")
	}

	var integrations []IntegrationResponse
	err := c.list(ctx, "/api/v1/integrations", params, &integrations)
	return integrations, err
}

// ResetIntegration закрывает circuit интеграции.
func (c *Client) ResetIntegration(ctx context.Context, name string) (*IntegrationResponse, error) {
	var integration IntegrationResponse
	err := c.post(ctx, "/api/v1/integrations/"+url.PathEscape(name)+"/reset", nil, &integration)
	return &integration, err
}

// ListAlerts возвращает журнал алертов с фильтрацией.
func (c *Client) ListAlerts(ctx context.Context, opts ListAlertsOpts) ([]AlertResponse, error) {
	params := url.Values{}
	if opts.Type != "" {
		params.Set("type", opts.Type)
	}
	if opts.Severity != "" {
		params.Set("severity", opts.Severity)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var alerts []AlertResponse
	err := c.list(ctx, "/api/v1/alerts", params, &alerts)
	return alerts, err
}

// Health возвращает состояние зависимостей сервиса.
// 503 не считается ошибкой: тело содержит результаты проверок.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		if err := c.checkError(resp); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &health, nil
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doData(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, http.MethodPost, path, body, result)
}

func (c *Client) list(ctx context.Context, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error.Code == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
