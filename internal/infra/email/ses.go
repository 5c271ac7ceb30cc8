package email

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"github.com/jash90/accounting-platform-sub001/internal/core/port"
	"github.com/jash90/accounting-platform-sub001/internal/infra/config"
	"github.com/jash90/accounting-platform-sub001/internal/infra/logger"
)

// SESSender implements port.EmailSender using AWS SES.
type SESSender struct {
	client      *ses.Client
	fromAddress string
	logger      *zap.Logger
}

// NewSESSender constructs an SES-backed sender from the ambient AWS config.
func NewSESSender(ctx context.Context, cfg config.EmailSettings, log *zap.Logger) (*SESSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SESSender{
		client:      ses.NewFromConfig(awsCfg),
		fromAddress: cfg.FromAddress,
		logger:      log,
	}, nil
}

// Send delivers a single transactional email through SES.
func (s *SESSender) Send(ctx context.Context, msg port.EmailMessage) error {
	body := &types.Body{}
	if msg.TextBody != "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}

	input := &ses.SendEmailInput{
		Source:      aws.String(s.fromAddress),
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: body,
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("ses send to %s: %w", logger.MaskEmail(msg.To), err)
	}

	return nil
}

var _ port.EmailSender = (*SESSender)(nil)

// LogSender is a development sender that records deliveries without sending.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs the development sender.
func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{logger: log}
}

// Send logs the delivery. The body is omitted; it may carry token links.
func (s *LogSender) Send(_ context.Context, msg port.EmailMessage) error {
	s.logger.Info("email delivery (log sender)",
		zap.String("to", logger.MaskEmail(msg.To)),
		zap.String("subject", msg.Subject),
	)
	return nil
}

var _ port.EmailSender = (*LogSender)(nil)
