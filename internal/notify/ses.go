package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the part of the SESv2 client the email sink uses.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// RecipientSource resolves who should receive admin mail at send time.
type RecipientSource func(ctx context.Context) ([]string, error)

// StaticRecipients always returns the same addresses.
func StaticRecipients(addrs ...string) RecipientSource {
	return func(context.Context) ([]string, error) { return addrs, nil }
}

// EmailNotifier sends plain-text mail to admins through AWS SES (SESv2 API).
type EmailNotifier struct {
	client     SESAPI
	from       string
	recipients RecipientSource
}

func NewEmailNotifier(client SESAPI, from string, recipients RecipientSource) *EmailNotifier {
	return &EmailNotifier{client: client, from: from, recipients: recipients}
}

// NewEmailNotifierFromConfig builds the SES client from an AWS config.
func NewEmailNotifierFromConfig(cfg aws.Config, from string, recipients RecipientSource) *EmailNotifier {
	return NewEmailNotifier(sesv2.NewFromConfig(cfg), from, recipients)
}

func (n *EmailNotifier) Name() string { return "ses" }

func (n *EmailNotifier) Notify(ctx context.Context, e Event) error {
	if n.from == "" {
		return errors.New("ses sender address not configured")
	}
	to, err := n.recipients(ctx)
	if err != nil {
		return fmt.Errorf("resolve recipients: %w", err)
	}
	if len(to) == 0 {
		return nil
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from),
		Destination:      &sestypes.Destination{ToAddresses: to},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(e.Subject())},
				Body:    &sestypes.Body{Text: &sestypes.Content{Data: aws.String(e.Body())}},
			},
		},
	}
	if _, err := n.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
