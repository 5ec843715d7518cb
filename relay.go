package intake

import (
	"context"
	"fmt"
)

// Relay performs a single delivery attempt of a job to the external web-hook.
type Relay interface {
	Forward(ctx context.Context, job *Job) error
}

// RelayFunc adapts a plain function to the Relay interface.
type RelayFunc func(ctx context.Context, job *Job) error

func (f RelayFunc) Forward(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// TransportError means the web-hook could not be reached at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Cause() error {
	return e.Err
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError means the web-hook answered with a non-success HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response code %d: %s", e.StatusCode, e.Body)
}

// DecodeError means the response body could not be decoded as JSON.
type DecodeError struct {
	Body string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to parse response: %s", e.Body)
}

func (e *DecodeError) Cause() error {
	return e.Err
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ApplicationError means the web-hook answered with JSON that does not report success.
type ApplicationError struct {
	Status  string
	Message string
}

func (e *ApplicationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("web-hook returned status %q", e.Status)
	}

	return fmt.Sprintf("web-hook returned status %q: %s", e.Status, e.Message)
}

// ExhaustedError is the final error of a job whose attempts all failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Cause() error {
	return e.Last
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Snippet shortens diagnostic text taken from a response body to its first
// 200 characters, never splitting a multi-byte character.
func Snippet(body string) string {
	const limit = 200

	count := 0
	for i := range body {
		if count == limit {
			return body[:i]
		}
		count++
	}

	return body
}
