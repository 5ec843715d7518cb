package intake

import (
	"time"

	"github.com/pkg/errors"
)

var UnknownKindErr = errors.New("The submission kind is not supported")

type JobKind string

const (
	JobCallback JobKind = "callback"
	JobProject  JobKind = "project"
)

func (k JobKind) Valid() bool {
	return k == JobCallback || k == JobProject
}

type JobState string

const (
	JobPending   JobState = "pending"
	JobInFlight  JobState = "in_flight"
	JobDelivered JobState = "delivered"
	JobFailed    JobState = "failed"
)

// Job is one accepted submission waiting to be forwarded to the web-hook.
// It is never modified once created.
type Job struct {
	Id   string  `json:"id"`
	Kind JobKind `json:"kind"`

	Payload map[string]string `json:"payload"`

	CreatedAt time.Time `json:"createdAt"`
}

// Body returns the outbound representation of the job, formType first.
func (j Job) Body() map[string]string {
	body := make(map[string]string, len(j.Payload)+1)
	for k, v := range j.Payload {
		body[k] = v
	}

	body["formType"] = string(j.Kind)

	return body
}

// StateChange is reported by the queue whenever a job moves to a new state.
type StateChange struct {
	JobId    string    `json:"jobId"`
	State    JobState  `json:"state"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Result is handed to whoever waits on an enqueued job.
type Result struct {
	Job      Job
	State    JobState
	Attempts int
	Err      error
}
