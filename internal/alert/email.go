package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/shaiso/stocksync/internal/domain"
)

// EmailConfig — параметры SMTP.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// SendFunc — сигнатура smtp.SendMail.
type SendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// EmailChannel отправляет алерты по SMTP.
type EmailChannel struct {
	cfg  EmailConfig
	send SendFunc
}

// NewEmailChannel создаёт канал. send == nil — smtp.SendMail.
func NewEmailChannel(cfg EmailConfig, send SendFunc) *EmailChannel {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if send == nil {
		send = smtp.SendMail
	}
	return &EmailChannel{cfg: cfg, send: send}
}

func (c *EmailChannel) Name() string { return "email" }

// Deliver отправляет письмо. smtp.SendMail не принимает контекст,
// поэтому отправка идёт в горутине, а Deliver ждёт её или отмены ctx.
func (c *EmailChannel) Deliver(ctx context.Context, a *domain.Alert) error {
	if len(c.cfg.To) == 0 {
		return fmt.Errorf("%w: email: no recipients", ErrDelivery)
	}

	var auth smtp.Auth
	if c.cfg.Username != "" {
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	}
	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprint(c.cfg.Port))
	msg := emailMessage(c.cfg.From, c.cfg.To, a)

	done := make(chan error, 1)
	go func() {
		done <- c.send(addr, auth, c.cfg.From, c.cfg.To, msg)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: email: %v", ErrDelivery, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: email: %v", ErrDelivery, err)
		}
		return nil
	}
}

func emailMessage(from string, to []string, a *domain.Alert) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: [%s] %s\r\n", a.Severity, a.Title)
	fmt.Fprintf(&b, "Date: %s\r\n", a.CreatedAt.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")

	b.WriteString(a.Message)
	b.WriteString("\r\n\r\n")
	fmt.Fprintf(&b, "Type: %s\r\n", a.Type)
	fmt.Fprintf(&b, "Severity: %s\r\n", a.Severity)
	fmt.Fprintf(&b, "Alert ID: %s\r\n", a.ID)

	if len(a.Data) > 0 {
		if raw, err := json.MarshalIndent(a.Data, "", "  "); err == nil {
			b.WriteString("\r\n")
			b.WriteString(strings.ReplaceAll(string(raw), "\n", "\r\n"))
			b.WriteString("\r\n")
		}
	}
	return []byte(b.String())
}
