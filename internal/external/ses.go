package external

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"eduplatform/internal/types"
)

// SESAPI is the part of the SES v2 client SESClient calls.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESClientConfig struct {
	// ConfigSetName routes delivery events; empty sends without one.
	ConfigSetName string
	Logger        *slog.Logger
}

// SESClient sends inactivity warnings through SES v2 using the task's IAM
// role. The SDK retries on its own, so BaseClient is not involved.
type SESClient struct {
	api           SESAPI
	configSetName string
	logger        *slog.Logger
}

func NewSESClient(awsCfg aws.Config, cfg SESClientConfig) *SESClient {
	return NewSESClientWithAPI(sesv2.NewFromConfig(awsCfg), cfg)
}

func NewSESClientWithAPI(api SESAPI, cfg SESClientConfig) *SESClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SESClient{api: api, configSetName: cfg.ConfigSetName, logger: logger}
}

// Send delivers the rendered subject and bodies as simple content; SES has
// no use for TemplateID. Every message is tagged as an inactivity warning
// so bounce and complaint events can be traced back to the account.
func (s *SESClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	body := &sestypes.Body{}
	if input.BodyText != "" {
		body.Text = utf8Content(input.BodyText)
	}
	if input.BodyHTML != "" {
		body.Html = utf8Content(input.BodyHTML)
	}

	params := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(formatSender(input.From)),
		Destination:      &sestypes.Destination{ToAddresses: []string{input.To}},
		Content: &sestypes.EmailContent{Simple: &sestypes.Message{
			Subject: utf8Content(input.Subject),
			Body:    body,
		}},
	}
	if s.configSetName != "" {
		params.ConfigurationSetName = aws.String(s.configSetName)
	}
	if input.ReferenceID != "" {
		params.EmailTags = []sestypes.MessageTag{
			{Name: aws.String("message_type"), Value: aws.String("inactivity_warning")},
			{Name: aws.String("reference_id"), Value: aws.String(sesTagValue(input.ReferenceID))},
		}
	}

	out, err := s.api.SendEmail(ctx, params)
	if err != nil {
		return "", mapSESError(err)
	}
	msgID := aws.ToString(out.MessageId)
	s.logger.DebugContext(ctx, "ses accepted message",
		"message_id", msgID,
		"reference_id", input.ReferenceID,
	)
	return msgID, nil
}

// formatSender quotes the display name as RFC 5322 requires.
func formatSender(from types.SenderIdentity) string {
	if from.Name == "" {
		return from.Address
	}
	return (&mail.Address{Name: from.Name, Address: from.Address}).String()
}

// sesTagValue replaces characters SES rejects in tag values; only ASCII
// letters, digits, '_' and '-' are allowed.
func sesTagValue(v string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, v)
}

func utf8Content(data string) *sestypes.Content {
	return &sestypes.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

// mapSESError classifies SES failures for the email worker's retry
// decision: rejected recipients and malformed requests are terminal.
func mapSESError(err error) error {
	var (
		rejected   *sestypes.MessageRejected
		badRequest *sestypes.BadRequestException
		throttled  *sestypes.TooManyRequestsException
		limited    *sestypes.LimitExceededException
		paused     *sestypes.SendingPausedException
		suspended  *sestypes.AccountSuspendedException
	)
	switch {
	case errors.As(err, &rejected):
		return types.NewAppError(types.ErrCodeEmailBlocked, "SES rejected message", err)
	case errors.As(err, &badRequest):
		return types.NewAppError(types.ErrCodeValidationInvalidEmail, "SES refused the request as malformed", err)
	case errors.As(err, &throttled), errors.As(err, &limited):
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "SES rate limit exceeded", err)
	case errors.As(err, &paused):
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "SES account sending paused", err)
	case errors.As(err, &suspended):
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "SES account suspended", err)
	default:
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider, "SES send failed", err)
	}
}

var _ EmailProvider = (*SESClient)(nil)
