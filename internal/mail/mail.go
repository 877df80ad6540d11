// ABOUTME: Mail Sender interface, message model, and driver selection from config.
// ABOUTME: MIME assembly is shared by every driver through go-mail.

package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	gomail "github.com/wneessen/go-mail"

	"github.com/2389/orders-mcp/internal/config"
)

// Driver names.
const (
	DriverSES  = "ses"
	DriverSMTP = "smtp"
	DriverLog  = "log"
)

// ErrUnknownDriver indicates a mail driver name is not recognized.
var ErrUnknownDriver = errors.New("unknown mail driver")

// ErrNoRecipient indicates a message has no destination address.
var ErrNoRecipient = errors.New("message has no recipient")

// Message is one outbound email with an optional file attachment.
type Message struct {
	To             string
	Subject        string
	Body           string
	AttachmentPath string
	// AttachmentName overrides the file name shown to the recipient.
	AttachmentName string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New builds the configured sender, wrapping it in a FallbackSender when a
// distinct fallback driver is configured.
func New(ctx context.Context, cfg config.MailConfig, logger *slog.Logger) (Sender, error) {
	if logger == nil {
		logger = slog.Default()
	}

	primary, err := newDriver(ctx, cfg.Driver, cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Fallback == "" || cfg.Fallback == cfg.Driver {
		return primary, nil
	}

	secondary, err := newDriver(ctx, cfg.Fallback, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}
	return NewFallbackSender(logger, primary, secondary), nil
}

func newDriver(ctx context.Context, driver string, cfg config.MailConfig, logger *slog.Logger) (Sender, error) {
	switch driver {
	case DriverSES:
		return NewSESSender(ctx, cfg.SES, cfg.From, logger)
	case DriverSMTP:
		return NewSMTPSender(cfg.SMTP, cfg.From, logger)
	case DriverLog, "":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

// buildMsg assembles msg as a go-mail message from the given sender address.
func buildMsg(from string, msg Message) (*gomail.Msg, error) {
	if msg.To == "" {
		return nil, ErrNoRecipient
	}

	m := gomail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)

	if msg.AttachmentPath != "" {
		// go-mail drops unreadable attachments silently
		if _, err := os.Stat(msg.AttachmentPath); err != nil {
			return nil, fmt.Errorf("attachment: %w", err)
		}
		name := msg.AttachmentName
		if name == "" {
			name = filepath.Base(msg.AttachmentPath)
		}
		m.AttachFile(msg.AttachmentPath, gomail.WithFileName(name))
	}
	return m, nil
}

// rawMIME renders msg as RFC 5322 bytes.
func rawMIME(from string, msg Message) ([]byte, error) {
	m, err := buildMsg(from, msg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("rendering message: %w", err)
	}
	return buf.Bytes(), nil
}
