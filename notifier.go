package intake

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Notifier alerts the site operator that a submission could not be delivered.
type Notifier interface {
	NotifyFailure(ctx context.Context, job Job, cause error) error
}

// FailureSubject and FailureBody render the alert sent by the e-mail notifiers.
func FailureSubject(job Job) string {
	return fmt.Sprintf("[intake] %s submission %s could not be delivered", job.Kind, job.Id)
}

func FailureBody(job Job, cause error) string {
	keys := make([]string, 0, len(job.Payload))
	for k := range job.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := &strings.Builder{}
	fmt.Fprintf(b, "A %s submission received at %s was not delivered to the spreadsheet.\n\n", job.Kind, job.CreatedAt.Format(TimestampLayout))
	for _, k := range keys {
		fmt.Fprintf(b, "%s: %s\n", k, job.Payload[k])
	}
	fmt.Fprintf(b, "\nLast error: %v\n", cause)

	return b.String()
}
