package provider

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
	"github.com/interactive-solutions/go-intake"
	"github.com/pkg/errors"
)

// sesNotifier e-mails the site operator through Amazon SES.
type sesNotifier struct {
	ses sesiface.SESAPI

	from    string
	to      string
	charset string
}

func NewSesNotifier(sess *session.Session, from, to string) intake.Notifier {
	return newSesNotifier(ses.New(sess), from, to)
}

func newSesNotifier(api sesiface.SESAPI, from, to string) *sesNotifier {
	return &sesNotifier{
		ses:     api,
		from:    from,
		to:      to,
		charset: "UTF-8",
	}
}

func (n *sesNotifier) NotifyFailure(ctx context.Context, job intake.Job, cause error) error {
	// Assemble the email.
	input := &ses.SendEmailInput{
		Destination: &ses.Destination{
			CcAddresses: []*string{},
			ToAddresses: []*string{
				aws.String(n.to),
			},
		},
		Message: &ses.Message{
			Body: &ses.Body{
				Text: &ses.Content{
					Charset: aws.String(n.charset),
					Data:    aws.String(intake.FailureBody(job, cause)),
				},
			},
			Subject: &ses.Content{
				Charset: aws.String(n.charset),
				Data:    aws.String(intake.FailureSubject(job)),
			},
		},

		Source: aws.String(n.from),
	}

	if _, err := n.ses.SendEmailWithContext(ctx, input); err != nil {
		return errors.Wrapf(err, "Failed to send failure notice for job %s", job.Id)
	}

	return nil
}
