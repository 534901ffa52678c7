// internal/common/aws/ses.go
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the slice of the SES API the sender needs; kept as an
// interface for mocking.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Sender delivers rendered digest emails through SES.
type Sender struct {
	client SESService
	from   string
}

func NewSender(ctx context.Context, region, from string) (*Sender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &Sender{client: ses.NewFromConfig(cfg), from: from}, nil
}

// NewSenderWithClient wires an existing SES client; used by tests.
func NewSenderWithClient(client SESService, from string) *Sender {
	return &Sender{client: client, from: from}
}

func (s *Sender) SendEmail(ctx context.Context, to, subject, html string) error {
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(html)},
			},
		},
		Source: aws.String(s.from),
	})
	return err
}
