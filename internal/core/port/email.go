package port

import "context"

// EmailMessage is the outbound mail payload handed to the sender.
type EmailMessage struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// EmailSender delivers transactional mail. Failures are logged by callers and
// never abort the owning operation.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}
