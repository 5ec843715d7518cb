package mailgun

import (
	"context"

	"github.com/interactive-solutions/go-intake"
	"github.com/mailgun/mailgun-go/v3"
	"github.com/pkg/errors"
)

type MailgunOption func(n *mailgunNotifier) error

func SetFrom(from string) MailgunOption {
	return func(n *mailgunNotifier) error {
		n.from = from
		return nil
	}
}

func SetReplyTo(replyTo string) MailgunOption {
	return func(n *mailgunNotifier) error {
		n.replyTo = replyTo
		return nil
	}
}

// sender is the part of mailgun.Mailgun the notifier needs.
type sender interface {
	NewMessage(from, subject, text string, to ...string) *mailgun.Message
	Send(ctx context.Context, m *mailgun.Message) (string, string, error)
}

type mailgunNotifier struct {
	mg sender

	to      string
	from    string
	replyTo string
}

func NewMailgunNotifier(mailgunClient mailgun.Mailgun, to string, options ...MailgunOption) (intake.Notifier, error) {
	n := &mailgunNotifier{
		mg: mailgunClient,
		to: to,
	}

	for _, option := range options {
		if err := option(n); err != nil {
			return nil, err
		}
	}

	if n.from == "" {
		return nil, errors.New("Missing sender address")
	}

	return n, nil
}

func (n *mailgunNotifier) NotifyFailure(ctx context.Context, job intake.Job, cause error) error {
	msg := n.mg.NewMessage(n.from, intake.FailureSubject(job), intake.FailureBody(job, cause), n.to)

	if err := msg.AddTag("intake-failure", string(job.Kind)); err != nil {
		return errors.Wrap(err, "Failed to add tags")
	}

	if n.replyTo != "" {
		msg.SetReplyTo(n.replyTo)
	}

	_, _, err := n.mg.Send(ctx, msg)
	return errors.Wrapf(err, "Failed to send failure notice for job %s", job.Id)
}
