package external

import (
	"context"
	"log/slog"
	"sync"

	"eduplatform/internal/types"
)

// EmailProvider delivers one rendered inactivity warning and returns the
// provider's message id. SendGridClient, SESClient and LocalEmailProvider
// implement it.
type EmailProvider interface {
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}

// localOutboxSize caps the messages LocalEmailProvider keeps in memory.
const localOutboxSize = 100

// LocalEmailProvider stands in for a real provider when APP_ENV=local. It
// never sends anything; it logs the message and keeps the latest ones.
type LocalEmailProvider struct {
	logger *slog.Logger

	mu     sync.Mutex
	outbox []types.SendInput
}

func NewLocalEmailProvider(logger *slog.Logger) *LocalEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalEmailProvider{logger: logger}
}

// Send logs the recipient masked. The message id is derived from the
// reference id so a redelivered warning gets the same id.
func (p *LocalEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	p.mu.Lock()
	if len(p.outbox) == localOutboxSize {
		p.outbox = p.outbox[1:]
	}
	p.outbox = append(p.outbox, input)
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "local email provider: warning not sent",
		"to", types.EmailAddress(input.To),
		"subject", input.Subject,
		"reference_id", input.ReferenceID,
	)
	return "local_" + input.ReferenceID, nil
}

// Outbox returns the retained messages, oldest first.
func (p *LocalEmailProvider) Outbox() []types.SendInput {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.SendInput(nil), p.outbox...)
}
