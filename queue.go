package intake

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var QueueClosedErr = errors.New("The forwarding queue is shut down")

const (
	DefaultAttempts      = 3
	DefaultBackoff       = 5 * time.Second
	defaultNotifyTimeout = 30 * time.Second
)

type QueueOption func(q *Queue)

func SetQueueLogger(logger logrus.FieldLogger) QueueOption {
	return func(q *Queue) {
		q.logger = logger
	}
}

// SetAttempts bounds how many times a job is handed to the relay.
func SetAttempts(attempts int) QueueOption {
	return func(q *Queue) {
		if attempts > 0 {
			q.attempts = attempts
		}
	}
}

// SetBackoff sets the fixed delay between two attempts of the same job.
func SetBackoff(backoff time.Duration) QueueOption {
	return func(q *Queue) {
		if backoff >= 0 {
			q.backoff = backoff
		}
	}
}

func SetStateHook(hook func(StateChange)) QueueOption {
	return func(q *Queue) {
		q.onState = hook
	}
}

func SetNotifier(notifier Notifier) QueueOption {
	return func(q *Queue) {
		q.notifier = notifier
	}
}

type entry struct {
	job  Job
	done chan Result
}

// Queue forwards jobs to the relay strictly one after the other, in the order
// they were enqueued. A single drain goroutine exists while jobs are pending.
type Queue struct {
	relay  Relay
	logger logrus.FieldLogger

	attempts int
	backoff  time.Duration

	onState  func(StateChange)
	notifier Notifier

	closing chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending []*entry
	running bool
	closed  bool
}

func NewQueue(relay Relay, options ...QueueOption) *Queue {
	q := &Queue{
		relay:    relay,
		logger:   logrus.New(),
		attempts: DefaultAttempts,
		backoff:  DefaultBackoff,
		closing:  make(chan struct{}),
	}

	for _, option := range options {
		option(q)
	}

	return q
}

// Enqueue appends job to the queue and returns immediately. The returned
// channel receives exactly one Result once the job is settled; callers that
// do not care about the outcome may drop it.
func (q *Queue) Enqueue(job Job) <-chan Result {
	done := make(chan Result, 1)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		done <- Result{Job: job, State: JobPending, Err: QueueClosedErr}
		return done
	}

	q.pending = append(q.pending, &entry{job: job, done: done})

	if !q.running {
		q.running = true
		q.wg.Add(1)
		go q.drain()
	}
	q.mu.Unlock()

	return done
}

// Len reports how many jobs wait behind the one currently in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// Shutdown stops the drain loop once the in-flight attempt has returned. Jobs
// that were not settled are answered with QueueClosedErr.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.closing)
	}
	q.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "Failed to drain forwarding queue")
	}
}

func (q *Queue) drain() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if q.closed || len(q.pending) == 0 {
			abandoned := q.pending
			q.pending = nil
			q.running = false
			q.mu.Unlock()

			for _, e := range abandoned {
				e.done <- Result{Job: e.job, State: JobPending, Err: QueueClosedErr}
			}

			return
		}

		e := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		e.done <- q.deliver(e.job)
	}
}

func (q *Queue) deliver(job Job) Result {
	var last error

	q.changeState(job, JobInFlight, 0, nil)

	for attempt := 1; attempt <= q.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-q.closing:
				return Result{Job: job, State: JobPending, Attempts: attempt - 1, Err: QueueClosedErr}
			case <-time.After(q.backoff):
			}
		}

		logger := q.logger.
			WithField("job", job.Id).
			WithField("kind", job.Kind).
			WithField("attempt", attempt)

		err := q.relay.Forward(context.Background(), &job)
		if err == nil {
			logger.WithField("outcome", "delivered").Info("forwarded job to web-hook")
			q.changeState(job, JobDelivered, attempt, nil)

			return Result{Job: job, State: JobDelivered, Attempts: attempt}
		}

		last = err
		logger.WithField("outcome", "failed").WithError(err).Warn("failed to forward job to web-hook")
	}

	err := &ExhaustedError{Attempts: q.attempts, Last: last}

	q.logger.
		WithField("job", job.Id).
		WithField("kind", job.Kind).
		WithError(err).
		Error("job failed, giving up")

	q.changeState(job, JobFailed, q.attempts, err)
	q.notify(job, err)

	return Result{Job: job, State: JobFailed, Attempts: q.attempts, Err: err}
}

func (q *Queue) changeState(job Job, state JobState, attempts int, err error) {
	if q.onState == nil {
		return
	}

	change := StateChange{
		JobId:    job.Id,
		State:    state,
		Attempts: attempts,
		At:       time.Now(),
	}
	if err != nil {
		change.Error = err.Error()
	}

	q.onState(change)
}

// notify runs detached from the drain loop; its outcome is only logged.
func (q *Queue) notify(job Job, cause error) {
	if q.notifier == nil {
		return
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), defaultNotifyTimeout)
		defer cancel()

		if err := q.notifier.NotifyFailure(ctx, job, cause); err != nil {
			q.logger.
				WithField("job", job.Id).
				WithError(err).
				Error("failed to notify operator about undelivered job")
		}
	}()
}
