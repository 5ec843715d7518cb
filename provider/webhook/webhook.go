package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/interactive-solutions/go-intake"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTimeout = 30 * time.Second

	successStatus = "success"
	maxBodyBytes  = 1 << 20
)

type WebhookOption func(w *webhook)

// SetTimeout bounds a single delivery attempt, response body included.
func SetTimeout(timeout time.Duration) WebhookOption {
	return func(w *webhook) {
		w.client.HTTPClient.Timeout = timeout
	}
}

func SetLogger(logger logrus.FieldLogger) WebhookOption {
	return func(w *webhook) {
		w.client.Logger = &leveledLogger{logger: logger}
	}
}

// webhook delivers jobs to a spreadsheet script that answers with
// {"status":"success"} once the row is written.
type webhook struct {
	client *retryablehttp.Client

	urls map[intake.JobKind]string
}

// New returns a relay posting every job kind to its own URL. Retries are left
// to the forwarding queue, so the client makes exactly one request per call.
func New(urls map[intake.JobKind]string, options ...WebhookOption) intake.Relay {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		return false, nil
	}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.HTTPClient.Timeout = DefaultTimeout
	client.Logger = &leveledLogger{logger: logrus.New()}

	w := &webhook{
		client: client,
		urls:   urls,
	}

	for _, option := range options {
		option(w)
	}

	return w
}

func (w *webhook) Forward(ctx context.Context, job *intake.Job) error {
	url, ok := w.urls[job.Kind]
	if !ok || url == "" {
		return errors.Wrapf(intake.UnknownKindErr, "No web-hook configured for %s", job.Kind)
	}

	body, err := json.Marshal(job.Body())
	if err != nil {
		return errors.Wrapf(err, "Failed to encode job %s", job.Id)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "Failed to build web-hook request")
	}

	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", intake.UserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return &intake.TransportError{Err: err}
	}
	defer resp.Body.Close()

	// The body is read as text before decoding; the script does not always
	// send an accurate content type and its error pages are HTML.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &intake.TransportError{Err: errors.Wrap(err, "Failed to read web-hook response")}
	}

	text := string(raw)

	if resp.StatusCode >= 300 || resp.StatusCode <= 199 {
		return &intake.StatusError{StatusCode: resp.StatusCode, Body: intake.Snippet(text)}
	}

	var result struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}

	if err := json.Unmarshal(raw, &result); err != nil {
		return &intake.DecodeError{Body: intake.Snippet(text), Err: err}
	}

	if result.Status != successStatus {
		return &intake.ApplicationError{Status: result.Status, Message: result.Message}
	}

	return nil
}
