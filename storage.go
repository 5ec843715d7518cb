package intake

import "github.com/pkg/errors"

var (
	JobNotFoundErr = errors.New("The job was not found")
)

// JobRepository keeps a record of accepted jobs so that jobs which were never
// settled can be queued again after a restart.
type JobRepository interface {
	// GetPending returns the jobs that were neither delivered nor failed,
	// oldest first.
	GetPending() ([]Job, error)

	Create(job *Job) error
	UpdateState(change StateChange) error
}
