// ABOUTME: SMTP sender built on go-mail with configurable TLS policy and authentication.
// ABOUTME: A client is dialed per message so concurrent tool calls never share a connection.

package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gomail "github.com/wneessen/go-mail"

	"github.com/2389/orders-mcp/internal/config"
)

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	cfg    config.SMTPConfig
	from   string
	policy gomail.TLSPolicy
	logger *slog.Logger
}

// NewSMTPSender validates cfg and creates an SMTP-backed sender.
func NewSMTPSender(cfg config.SMTPConfig, from string, logger *slog.Logger) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if from == "" {
		return nil, errors.New("sender address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	policy, err := tlsPolicy(cfg.TLS)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SMTPSender{
		cfg:    cfg,
		from:   from,
		policy: policy,
		logger: logger.With("component", "mail", "driver", DriverSMTP),
	}, nil
}

func tlsPolicy(name string) (gomail.TLSPolicy, error) {
	switch name {
	case "", "opportunistic":
		return gomail.TLSOpportunistic, nil
	case "mandatory":
		return gomail.TLSMandatory, nil
	case "none":
		return gomail.NoTLS, nil
	default:
		return gomail.TLSOpportunistic, fmt.Errorf("unknown smtp tls policy %q", name)
	}
}

func (s *SMTPSender) client() (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPolicy(s.policy),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	return gomail.NewClient(s.cfg.Host, opts...)
}

// Send dials the relay and delivers msg.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := buildMsg(s.from, msg)
	if err != nil {
		return err
	}

	c, err := s.client()
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}

	s.logger.Info("mail sent", "to", msg.To, "host", s.cfg.Host)
	return nil
}
