package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/stocksync/internal/telemetry"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
	maxErrorBody       = 512
)

// Request — запрос к upstream относительно base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response — ответ upstream.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode декодирует JSON-тело в dest.
func (r *Response) Decode(dest any) error {
	if err := json.Unmarshal(r.Body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Doer выполняет запрос.
type Doer func(ctx context.Context, req *Request) (*Response, error)

// Middleware оборачивает Doer.
type Middleware func(next Doer) Doer

// Chain применяет middleware: первая в списке — внешняя.
func Chain(d Doer, mws ...Middleware) Doer {
	for i := len(mws) - 1; i >= 0; i-- {
		d = mws[i](d)
	}
	return d
}

// transport — конечное звено цепочки: HTTP-запрос к upstream.
type transport struct {
	name       string
	baseURL    string
	authHeader string
	authValue  string
	client     *http.Client
	logger     *slog.Logger
}

func newTransport(cfg Config, logger *slog.Logger) *transport {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	authHeader := cfg.AuthHeader
	authValue := cfg.APIKey
	if authHeader == "" {
		authHeader = "Authorization"
		if authValue != "" {
			authValue = "Bearer " + authValue
		}
	}

	return &transport{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authHeader: authHeader,
		authValue:  authValue,
		client:     client,
		logger:     logger,
	}
}

// Do выполняет запрос. Статус >= 400 возвращается как *HTTPError.
func (t *transport) Do(ctx context.Context, r *Request) (*Response, error) {
	req, err := t.buildRequest(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		telemetry.UpstreamRequests.WithLabelValues(t.name, r.Method, "error").Observe(elapsed.Seconds())
		t.logger.Warn("upstream request failed",
			"method", r.Method,
			"path", r.Path,
			"duration", elapsed,
			"error", err,
		)
		return nil, fmt.Errorf("%s %s %s: %w", t.name, r.Method, r.Path, err)
	}
	defer resp.Body.Close()

	code := strconv.Itoa(resp.StatusCode)
	telemetry.UpstreamRequests.WithLabelValues(t.name, r.Method, code).Observe(elapsed.Seconds())

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	t.logger.Debug("upstream response",
		"method", r.Method,
		"path", r.Path,
		"status", resp.StatusCode,
		"duration", elapsed,
		"bytes", len(body),
	)

	if resp.StatusCode >= 400 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &HTTPError{
			Integration: t.name,
			Method:      r.Method,
			Path:        r.Path,
			StatusCode:  resp.StatusCode,
			Body:        string(body),
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (t *transport) buildRequest(ctx context.Context, r *Request) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	target := t.baseURL + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	var bodyReader io.Reader
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.authValue != "" {
		req.Header.Set(t.authHeader, t.authValue)
	}

	return req, nil
}
