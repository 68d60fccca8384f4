package email

import (
	"context"
	"fmt"
	"log/slog"

	"eduplatform/internal/external"
	"eduplatform/internal/types"
)

// WarningNotifierConfig holds the dependencies of a WarningNotifier.
type WarningNotifierConfig struct {
	Provider external.EmailProvider
	Renderer *Renderer
	Sender   types.SenderIdentity
	// TemplateID selects a SendGrid dynamic template. The rendered content is
	// always attached too, so SES and template-less SendGrid work unchanged.
	TemplateID string
	Logger     *slog.Logger
}

// WarningNotifier sends the inactivity warning synchronously. It implements
// lifecycle.Notifier and is also what the email worker uses to drain the
// queue.
type WarningNotifier struct {
	provider   external.EmailProvider
	renderer   *Renderer
	sender     types.SenderIdentity
	templateID string
	logger     *slog.Logger
}

// NewWarningNotifier creates a WarningNotifier.
func NewWarningNotifier(cfg WarningNotifierConfig) *WarningNotifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WarningNotifier{
		provider:   cfg.Provider,
		renderer:   cfg.Renderer,
		sender:     cfg.Sender,
		templateID: cfg.TemplateID,
		logger:     logger,
	}
}

// SendInactivityWarning renders and sends one warning. Any error means the
// message was not accepted by the provider.
func (n *WarningNotifier) SendInactivityWarning(ctx context.Context, w types.InactivityWarning) error {
	if w.To == "" {
		return types.NewAppError(types.ErrCodeValidationInvalidEmail,
			fmt.Sprintf("account %s has no email address", w.AccountID), nil)
	}

	rendered, err := n.renderer.Render(w)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to render inactivity warning", err)
	}

	input := types.SendInput{
		To:          w.To,
		From:        n.sender,
		Subject:     rendered.Subject,
		BodyHTML:    rendered.BodyHTML,
		BodyText:    rendered.BodyText,
		ReferenceID: "inactivity:" + w.AccountID,
	}
	if n.templateID != "" {
		input.TemplateID = n.templateID
		input.TemplateData = TemplateData(w)
	}

	msgID, err := n.provider.Send(ctx, input)
	if err != nil {
		if IsBlocklistError(err) {
			n.logger.WarnContext(ctx, "inactivity warning recipient blocked",
				"account_id", w.AccountID,
				"to", types.EmailAddress(w.To),
			)
		}
		return fmt.Errorf("send inactivity warning to account %s: %w", w.AccountID, err)
	}

	n.logger.InfoContext(ctx, "inactivity warning sent",
		"account_id", w.AccountID,
		"to", types.EmailAddress(w.To),
		"message_id", msgID,
		"deletion_date", w.DeletionDate.Format("2006-01-02"),
	)
	return nil
}
