package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/shaiso/stocksync/internal/domain"
)

const (
	defaultChatTimeout = 10 * time.Second
	maxRawData         = 2000
)

// ChatField — строка карточки сообщения.
type ChatField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ChatMessage — тело запроса к chat webhook.
type ChatMessage struct {
	Title    string      `json:"title"`
	Severity string      `json:"severity"`
	Text     string      `json:"text"`
	Fields   []ChatField `json:"fields"`
	Raw      string      `json:"raw,omitempty"`
}

// ChatChannel отправляет алерты в chat webhook.
type ChatChannel struct {
	url    string
	client *http.Client
}

// NewChatChannel создаёт канал. timeout <= 0 — 10s.
func NewChatChannel(url string, timeout time.Duration) *ChatChannel {
	if timeout <= 0 {
		timeout = defaultChatTimeout
	}
	return &ChatChannel{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *ChatChannel) Name() string { return "chat" }

// Deliver отправляет алерт. Ответ >= 300 считается ошибкой.
func (c *ChatChannel) Deliver(ctx context.Context, a *domain.Alert) error {
	body, err := json.Marshal(chatMessage(a))
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: chat: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: chat: HTTP %d: %s", ErrDelivery, resp.StatusCode, respBody)
	}
	return nil
}

func chatMessage(a *domain.Alert) ChatMessage {
	msg := ChatMessage{
		Title:    a.Title,
		Severity: string(a.Severity),
		Text:     a.Message,
		Fields: []ChatField{
			{Name: "type", Value: a.Type},
			{Name: "time", Value: a.CreatedAt.UTC().Format(time.RFC3339)},
		},
	}

	keys := make([]string, 0, len(a.Data))
	for k, v := range a.Data {
		if _, ok := v.(string); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		msg.Fields = append(msg.Fields, ChatField{Name: k, Value: a.Data[k].(string)})
	}

	if len(a.Data) > 0 {
		if raw, err := json.MarshalIndent(a.Data, "", "  "); err == nil {
			msg.Raw = truncate(string(raw), maxRawData)
		}
	}
	return msg
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
