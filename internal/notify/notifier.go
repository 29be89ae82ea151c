// Package notify delivers alert messages to the configured backend.
package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"

	"github.com/saurav5380/apicompass/internal/config"
)

type Notifier interface {
	Send(ctx context.Context, subject, body string) error
}

// LogNotifier writes alerts to the application log. It is the default
// backend for local development.
type LogNotifier struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify.log")}
}

func (n *LogNotifier) Send(_ context.Context, subject, body string) error {
	n.log.Info("alert notification",
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}

type SMTPNotifier struct {
	host      string
	port      string
	from      string
	recipient string
}

func NewSMTP(cfg config.NotifyConfig) *SMTPNotifier {
	return &SMTPNotifier{
		host:      cfg.SMTPHost,
		port:      cfg.SMTPPort,
		from:      cfg.SMTPFrom,
		recipient: cfg.Recipient,
	}
}

func (n *SMTPNotifier) Send(_ context.Context, subject, body string) error {
	if n.recipient == "" {
		return fmt.Errorf("notify: no recipient configured")
	}
	addr := fmt.Sprintf("%s:%s", n.host, n.port)
	msg := []byte(fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\n\r\n%s", n.recipient, n.from, subject, body))
	return smtp.SendMail(addr, nil, n.from, []string{n.recipient}, msg)
}
