package mailer

import (
	"context"

	"go.uber.org/zap"
)

// ConsoleMailer logs outgoing messages instead of delivering them. Used in
// development and as the fallback when no provider is configured.
type ConsoleMailer struct {
	logger *zap.Logger
}

// NewConsoleMailer builds a console mailer.
func NewConsoleMailer(logger *zap.Logger) *ConsoleMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleMailer{logger: logger}
}

// SendBatch logs the batch and reports every recipient as sent.
func (m *ConsoleMailer) SendBatch(ctx context.Context, recipients []Recipient, content Content) (DeliveryResult, error) {
	emails := make([]string, 0, len(recipients))
	for _, rcpt := range recipients {
		if rcpt.Email != "" {
			emails = append(emails, rcpt.Email)
		}
	}
	m.logger.Sugar().Infow("console mail",
		"subject", content.Subject,
		"title", content.Title,
		"recipients", emails,
	)
	return DeliveryResult{Sent: len(emails), Failed: len(recipients) - len(emails)}, nil
}
