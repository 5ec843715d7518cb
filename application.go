package intake

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const UserAgent = "InteractiveSolutions/GoIntake-1.0"

// DefaultAllowedOrigins are the sites allowed to post forms when
// SetAllowedOrigins is not used.
var DefaultAllowedOrigins = []string{
	"http://127.0.0.1:3000",
	"http://localhost:3000",
	"https://scatprojects.netlify.app",
}

type Application interface {
	HttpHandler() *HttpHandler
	Submit(ctx context.Context, kind JobKind, raw map[string]interface{}) (Job, <-chan Result, error)
	Shutdown(ctx context.Context) error
}

type AppOption func(a *application)

func SetLogger(logger logrus.FieldLogger) AppOption {
	return func(a *application) {
		a.logger = logger
	}
}

func SetRelay(relay Relay) AppOption {
	return func(a *application) {
		a.relay = relay
	}
}

func SetJobRepo(repo JobRepository) AppOption {
	return func(a *application) {
		a.jobRepo = repo
	}
}

func SetValidator(validator *Validator) AppOption {
	return func(a *application) {
		a.validator = validator
	}
}

// SetRateLimiter replaces the limiter guarding submissions of the given kind.
func SetRateLimiter(kind JobKind, limiter RateLimiter) AppOption {
	return func(a *application) {
		a.limiters[kind] = limiter
	}
}

func SetQueueOptions(options ...QueueOption) AppOption {
	return func(a *application) {
		a.queueOptions = append(a.queueOptions, options...)
	}
}

// SetTrustProxy makes the right-most X-Forwarded-For entry the caller identity.
func SetTrustProxy(trust bool) AppOption {
	return func(a *application) {
		a.trustProxy = trust
	}
}

func SetAllowedOrigins(origins []string) AppOption {
	return func(a *application) {
		a.allowedOrigins = origins
	}
}

type application struct {
	logger logrus.FieldLogger

	relay        Relay
	queue        *Queue
	queueOptions []QueueOption

	jobRepo   JobRepository
	validator *Validator
	limiters  map[JobKind]RateLimiter

	trustProxy     bool
	allowedOrigins []string

	now func() time.Time
}

func NewApplication(options ...AppOption) (Application, error) {
	app := &application{
		logger:    logrus.New(),
		validator: NewValidator(),
		limiters: map[JobKind]RateLimiter{
			JobCallback: NewMemoryRateLimiter(DefaultRateLimit, DefaultRateLimitWindow),
			JobProject:  NewMemoryRateLimiter(DefaultRateLimit, DefaultRateLimitWindow),
		},
		allowedOrigins: DefaultAllowedOrigins,
		now:            time.Now,
	}

	for _, option := range options {
		option(app)
	}

	if err := app.ensureUsableConfiguration(); err != nil {
		return app, err
	}

	queueOptions := append([]QueueOption{
		SetQueueLogger(app.logger),
		SetStateHook(app.recordState),
	}, app.queueOptions...)

	app.queue = NewQueue(app.relay, queueOptions...)

	if app.jobRepo == nil {
		return app, nil
	}

	jobs, err := app.jobRepo.GetPending()
	if err != nil {
		return app, errors.Wrap(err, "Failed to load pending jobs")
	}

	for _, job := range jobs {
		app.queue.Enqueue(job)
	}

	if len(jobs) > 0 {
		app.logger.WithField("count", len(jobs)).Info("re-queued pending jobs")
	}

	return app, nil
}

func (a *application) HttpHandler() *HttpHandler {
	return &HttpHandler{
		app: a,
	}
}

// Submit validates raw, records the job and queues it for delivery without
// waiting for the web-hook. A ValidationErrors value is returned when raw
// violates a rule.
func (a *application) Submit(ctx context.Context, kind JobKind, raw map[string]interface{}) (Job, <-chan Result, error) {
	if !kind.Valid() {
		return Job{}, nil, errors.Wrapf(UnknownKindErr, "kind %q", kind)
	}

	payload, verrs := a.validator.Validate(kind, raw)
	if len(verrs) > 0 {
		return Job{}, nil, verrs
	}

	job := Job{
		Id:        uuid.New().String(),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: a.now(),
	}

	if _, ok := job.Payload["timestamp"]; !ok {
		job.Payload["timestamp"] = job.CreatedAt.Format(TimestampLayout)
	}

	if a.jobRepo != nil {
		if err := a.jobRepo.Create(&job); err != nil {
			return job, nil, errors.Wrapf(err, "Failed to store job %s", job.Id)
		}
	}

	done := a.queue.Enqueue(job)

	a.logger.
		WithField("job", job.Id).
		WithField("kind", job.Kind).
		Info("job queued")

	return job, done, nil
}

func (a *application) Shutdown(ctx context.Context) error {
	return a.queue.Shutdown(ctx)
}

func (a *application) ensureUsableConfiguration() error {
	if a.relay == nil {
		return errors.New("Missing relay")
	}

	if a.validator == nil {
		return errors.New("Missing validator")
	}

	for _, kind := range []JobKind{JobCallback, JobProject} {
		if a.limiters[kind] == nil {
			return errors.Errorf("Missing rate limiter for %s", kind)
		}
	}

	return nil
}

func (a *application) recordState(change StateChange) {
	if a.jobRepo == nil {
		return
	}

	if err := a.jobRepo.UpdateState(change); err != nil {
		a.logger.
			WithField("job", change.JobId).
			WithField("state", change.State).
			WithError(err).
			Error("failed to update job in job repo")
	}
}
