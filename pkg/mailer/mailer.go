package mailer

import "context"

// Recipient identifies one email target.
type Recipient struct {
	UserID string
	Name   string
	Email  string
}

// Content carries the rendered message in both platform languages.
type Content struct {
	Subject    string
	Title      string
	Message    string
	TitleAlt   string
	MessageAlt string
}

// DeliveryResult summarises a batch send.
type DeliveryResult struct {
	Sent   int
	Failed int
}

// Mailer sends a notification email to a batch of recipients. Callers treat
// any failure as degraded delivery, never as a request failure.
type Mailer interface {
	SendBatch(ctx context.Context, recipients []Recipient, content Content) (DeliveryResult, error)
}
