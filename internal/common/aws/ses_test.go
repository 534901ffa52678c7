package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
)

type mockSESClient struct {
	sendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.sendEmailFunc(ctx, params, optFns...)
}

func TestSendEmail(t *testing.T) {
	var captured *ses.SendEmailInput
	client := &mockSESClient{
		sendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			captured = params
			return &ses.SendEmailOutput{}, nil
		},
	}

	sender := NewSenderWithClient(client, "noreply@example.com")
	err := sender.SendEmail(context.Background(), "alice@example.com", "Subject line", "<p>body</p>")

	assert.NoError(t, err)
	assert.Equal(t, "noreply@example.com", *captured.Source)
	assert.Equal(t, []string{"alice@example.com"}, captured.Destination.ToAddresses)
	assert.Equal(t, "Subject line", *captured.Message.Subject.Data)
	assert.Equal(t, "<p>body</p>", *captured.Message.Body.Html.Data)
}

func TestSendEmail_PropagatesError(t *testing.T) {
	client := &mockSESClient{
		sendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("throttled")
		},
	}

	sender := NewSenderWithClient(client, "noreply@example.com")
	err := sender.SendEmail(context.Background(), "alice@example.com", "s", "b")
	assert.Error(t, err)
}
