// ABOUTME: Log-only sender for local runs and a fallback chain trying senders in order.
// ABOUTME: The chain stops at the first success and joins every error otherwise.

package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// LogSender records messages in the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With("component", "mail", "driver", DriverLog)}
}

// Send logs msg. The attachment must exist so a missing export still fails.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}

	var size int64
	if msg.AttachmentPath != "" {
		info, err := os.Stat(msg.AttachmentPath)
		if err != nil {
			return fmt.Errorf("attachment: %w", err)
		}
		size = info.Size()
	}

	s.logger.Info("mail delivery skipped (log driver)",
		"to", msg.To,
		"subject", msg.Subject,
		"attachment", msg.AttachmentName,
		"attachment_bytes", size,
	)
	return nil
}

// FallbackSender tries each sender in order until one succeeds.
type FallbackSender struct {
	senders []Sender
	logger  *slog.Logger
}

// NewFallbackSender creates a chain over senders.
func NewFallbackSender(logger *slog.Logger, senders ...Sender) *FallbackSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackSender{senders: senders, logger: logger.With("component", "mail")}
}

// Send delivers msg through the first sender that succeeds.
func (f *FallbackSender) Send(ctx context.Context, msg Message) error {
	var errs []error
	for i, s := range f.senders {
		err := s.Send(ctx, msg)
		if err == nil {
			if i > 0 {
				f.logger.Info("mail delivered by fallback sender", "to", msg.To, "attempt", i+1)
			}
			return nil
		}

		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		if i < len(f.senders)-1 {
			f.logger.Warn("mail sender failed, trying fallback", "to", msg.To, "attempt", i+1, "error", err)
		}
	}

	if len(errs) == 0 {
		return errors.New("no mail senders configured")
	}
	return errors.Join(errs...)
}
