package external

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"eduplatform/internal/types"
)

type mockSESAPI struct {
	sendEmailFunc func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

func (m *mockSESAPI) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	return m.sendEmailFunc(ctx, params, optFns...)
}

func sesReturning(err error, captured **sesv2.SendEmailInput) *mockSESAPI {
	return &mockSESAPI{
		sendEmailFunc: func(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			if captured != nil {
				*captured = params
			}
			if err != nil {
				return nil, err
			}
			return &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-1")}, nil
		},
	}
}

func warningInput() types.SendInput {
	return types.SendInput{
		To: "student@school.test",
		From: types.SenderIdentity{
			Name:    "EduPlatform",
			Address: "no-reply@eduplatform.io",
		},
		TemplateID:  "d-inactivity",
		Subject:     "Your account will be deleted on 22 March 2026",
		BodyHTML:    "<p>Log in to keep your account.</p>",
		BodyText:    "Log in to keep your account.",
		ReferenceID: "inactivity:stu_1",
	}
}

func TestSESSend_Success(t *testing.T) {
	var captured *sesv2.SendEmailInput
	client := NewSESClientWithAPI(sesReturning(nil, &captured), SESClientConfig{
		ConfigSetName: "eduplatform-tracking",
	})

	msgID, err := client.Send(context.Background(), warningInput())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if msgID != "ses-msg-1" {
		t.Errorf("message id = %q, want ses-msg-1", msgID)
	}

	if got := aws.ToString(captured.FromEmailAddress); got != `"EduPlatform" <no-reply@eduplatform.io>` {
		t.Errorf("from = %q", got)
	}
	if len(captured.Destination.ToAddresses) != 1 || captured.Destination.ToAddresses[0] != "student@school.test" {
		t.Errorf("to = %v", captured.Destination.ToAddresses)
	}
	msg := captured.Content.Simple
	if aws.ToString(msg.Subject.Data) != "Your account will be deleted on 22 March 2026" {
		t.Errorf("subject = %q", aws.ToString(msg.Subject.Data))
	}
	if msg.Body.Html == nil || aws.ToString(msg.Body.Html.Data) != "<p>Log in to keep your account.</p>" {
		t.Error("html body missing")
	}
	if msg.Body.Text == nil || aws.ToString(msg.Body.Text.Charset) != "UTF-8" {
		t.Error("text body missing or wrong charset")
	}
	if aws.ToString(captured.ConfigurationSetName) != "eduplatform-tracking" {
		t.Errorf("configuration set = %q", aws.ToString(captured.ConfigurationSetName))
	}
	if len(captured.EmailTags) != 2 || aws.ToString(captured.EmailTags[1].Value) != "inactivity_stu_1" {
		t.Errorf("tags = %+v", captured.EmailTags)
	}
	if aws.ToString(captured.EmailTags[0].Value) != "inactivity_warning" {
		t.Errorf("message_type tag = %q", aws.ToString(captured.EmailTags[0].Value))
	}
}

func TestSESSend_OptionalFieldsOmitted(t *testing.T) {
	var captured *sesv2.SendEmailInput
	client := NewSESClientWithAPI(sesReturning(nil, &captured), SESClientConfig{})

	input := warningInput()
	input.From.Name = ""
	input.BodyHTML = ""
	input.ReferenceID = ""

	if _, err := client.Send(context.Background(), input); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if got := aws.ToString(captured.FromEmailAddress); got != "no-reply@eduplatform.io" {
		t.Errorf("from = %q, want bare address", got)
	}
	if captured.Content.Simple.Body.Html != nil {
		t.Error("html body should be nil when empty")
	}
	if captured.ConfigurationSetName != nil {
		t.Error("configuration set should be nil when not configured")
	}
	if captured.EmailTags != nil {
		t.Error("tags should be nil without a reference id")
	}
}

func TestSESSend_NilMessageID(t *testing.T) {
	api := &mockSESAPI{
		sendEmailFunc: func(context.Context, *sesv2.SendEmailInput, ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return &sesv2.SendEmailOutput{}, nil
		},
	}
	msgID, err := NewSESClientWithAPI(api, SESClientConfig{}).Send(context.Background(), warningInput())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if msgID != "" {
		t.Errorf("message id = %q, want empty", msgID)
	}
}

func TestSESSend_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorCode
	}{
		{"rejected", &sestypes.MessageRejected{Message: aws.String("address on suppression list")}, types.ErrCodeEmailBlocked},
		{"throttled", &sestypes.TooManyRequestsException{Message: aws.String("slow down")}, types.ErrCodeUpstreamRateLimited},
		{"paused", &sestypes.SendingPausedException{Message: aws.String("paused")}, types.ErrCodeUpstreamUnavailable},
		{"suspended", &sestypes.AccountSuspendedException{}, types.ErrCodeUpstreamUnavailable},
		{"limit", &sestypes.LimitExceededException{}, types.ErrCodeUpstreamRateLimited},
		{"bad request", &sestypes.BadRequestException{Message: aws.String("Missing final '@domain'")}, types.ErrCodeValidationInvalidEmail},
		{"wrapped rejection", fmt.Errorf("operation error: %w", &sestypes.MessageRejected{}), types.ErrCodeEmailBlocked},
		{"generic", errors.New("dial tcp: i/o timeout"), types.ErrCodeUpstreamEmailProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewSESClientWithAPI(sesReturning(tt.err, nil), SESClientConfig{})
			_, err := client.Send(context.Background(), warningInput())

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %T", err)
			}
			if appErr.Code != tt.want {
				t.Errorf("code = %s, want %s", appErr.Code, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Error("original error should stay reachable through Unwrap")
			}
		})
	}
}

func TestSESTagValue(t *testing.T) {
	if got := sesTagValue("stu_1:2026-10-01"); got != "stu_1_2026-10-01" {
		t.Errorf("sesTagValue = %q", got)
	}
	if got := sesTagValue("inactivity:élève"); got != "inactivity__l_ve" {
		t.Errorf("non-ascii = %q", got)
	}
}
