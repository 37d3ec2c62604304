// Package notification delivers doctor-facing emails for adherence alerts and
// appointment reminders.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// ErrInvalidRecipient means the address can never be delivered to.
var ErrInvalidRecipient = errors.New("invalid recipient")

// Email is a rendered message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Enabled reports whether enough is configured to send real mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// SMTPSender sends through an authenticated SMTP relay.
type SMTPSender struct {
	mu     sync.Mutex
	client *mail.Client
	from   string
	logger *zap.Logger
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender(cfg SMTPConfig, logger *zap.Logger) (*SMTPSender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled() {
		return nil, errors.New("smtp: host, username and password are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPSender{client: client, from: from, logger: logger}, nil
}

func (s *SMTPSender) Send(ctx context.Context, e Email) error {
	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("set sender %q: %w", s.from, err)
	}
	if err := m.To(e.To); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidRecipient, e.To, err)
	}
	m.Subject(e.Subject)
	m.SetBodyString(mail.TypeTextHTML, e.HTML)

	// mail.Client holds one connection at a time.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	s.logger.Info("email sent", zap.String("to", e.To), zap.String("subject", e.Subject))
	return nil
}

// LogSender only logs; used when SMTP is not configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a new log-only sender
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, e Email) error {
	s.logger.Info("email delivery disabled, message logged",
		zap.String("to", e.To),
		zap.String("subject", e.Subject))
	return nil
}
