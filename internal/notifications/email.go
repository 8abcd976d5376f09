package notifications

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cinevault/cinevault-backend/pkg/config"
	"github.com/cinevault/cinevault-backend/pkg/logger"
)

// OrderConfirmation is the payload of the payment receipt email.
type OrderConfirmation struct {
	OrderID string
	Amount  decimal.Decimal
	Movies  []string
	PaidAt  time.Time
}

// Sender delivers customer-facing emails.
type Sender interface {
	SendOrderConfirmation(ctx context.Context, to string, data OrderConfirmation) error
}

var confirmationTmpl = template.Must(template.New("order_confirmation").Parse(
	`Subject: Your CineVault order {{.OrderID}}

Thanks for your purchase!

Order {{.OrderID}} was paid on {{.PaidAt.Format "Jan 2, 2006 15:04 MST"}}.
Total: ${{.Amount}}

Your movies:
{{- range .Movies}}
  - {{.}}
{{- end}}

They are available in your library now.
`))

// SMTPSender delivers mail through a plain SMTP relay.
type SMTPSender struct {
	cfg  config.EmailConfig
	logg *logger.Logger
}

// NewSMTPSender validates the relay settings and builds a sender.
func NewSMTPSender(cfg config.EmailConfig, logg *logger.Logger) (*SMTPSender, error) {
	if cfg.Hostname == "" {
		return nil, fmt.Errorf("email host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("email from address is required")
	}
	return &SMTPSender{cfg: cfg, logg: logg}, nil
}

// SendOrderConfirmation renders and sends the receipt email.
func (s *SMTPSender) SendOrderConfirmation(ctx context.Context, to string, data OrderConfirmation) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("recipient address is required")
	}

	var body bytes.Buffer
	body.WriteString(fmt.Sprintf("From: %s\r\nTo: %s\r\n", s.cfg.From, to))
	if err := confirmationTmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render confirmation email: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Hostname, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.From, s.cfg.Password, s.cfg.Hostname)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, body.Bytes()); err != nil {
		return fmt.Errorf("send confirmation email: %w", err)
	}
	if s.logg != nil {
		s.logg.Info(ctx, fmt.Sprintf("order confirmation sent for order %s", data.OrderID))
	}
	return nil
}

// NoopSender logs instead of sending; used in dev and tests.
type NoopSender struct {
	logg *logger.Logger
}

// NewNoopSender builds a sender that only logs.
func NewNoopSender(logg *logger.Logger) *NoopSender {
	return &NoopSender{logg: logg}
}

// SendOrderConfirmation logs the would-be delivery.
func (s *NoopSender) SendOrderConfirmation(ctx context.Context, to string, data OrderConfirmation) error {
	if s.logg != nil {
		s.logg.Info(ctx, fmt.Sprintf("skipping confirmation email to %s for order %s", to, data.OrderID))
	}
	return nil
}
