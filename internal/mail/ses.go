// ABOUTME: Amazon SES v2 sender delivering raw MIME messages with attachments.
// ABOUTME: Credentials and region come from the default AWS configuration chain.

package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/2389/orders-mcp/internal/config"
)

// SESClient defines the SES operations used by SESSender.
// This allows for easy mocking in tests.
type SESClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends mail through Amazon SES.
type SESSender struct {
	client           SESClient
	from             string
	configurationSet string
	logger           *slog.Logger
}

// NewSESSender loads AWS configuration and creates an SES-backed sender.
func NewSESSender(ctx context.Context, cfg config.SESConfig, from string, logger *slog.Logger) (*SESSender, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return NewSESSenderWithClient(sesv2.NewFromConfig(awsCfg), from, cfg.ConfigurationSet, logger)
}

// NewSESSenderWithClient creates a sender around an existing SES client.
func NewSESSenderWithClient(client SESClient, from, configurationSet string, logger *slog.Logger) (*SESSender, error) {
	if client == nil {
		return nil, errors.New("SES client is required")
	}
	if from == "" {
		return nil, errors.New("sender address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SESSender{
		client:           client,
		from:             from,
		configurationSet: configurationSet,
		logger:           logger.With("component", "mail", "driver", DriverSES),
	}, nil
}

// Send delivers msg as a raw MIME message.
func (s *SESSender) Send(ctx context.Context, msg Message) error {
	raw, err := rawMIME(s.from, msg)
	if err != nil {
		return err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content:          &types.EmailContent{Raw: &types.RawMessage{Data: raw}},
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("SES send to %s: %w", msg.To, err)
	}

	s.logger.Info("mail sent", "to", msg.To, "message_id", aws.ToString(out.MessageId), "bytes", len(raw))
	return nil
}
