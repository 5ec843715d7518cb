package gopg

import (
	"time"

	"github.com/go-pg/pg"
	"github.com/go-pg/pg/orm"
	"github.com/interactive-solutions/go-intake"
)

func NewJobRepository(db *pg.DB) intake.JobRepository {
	return &jobRepository{
		db: db,
	}
}

type jobWrapper struct {
	TableName struct{} `sql:"intake_jobs, alias:ij" json:"-"`

	*intake.Job

	State     intake.JobState `sql:",notnull" json:"state"`
	Attempts  int             `sql:",notnull" json:"attempts"`
	LastError string          `json:"lastError"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type jobRepository struct {
	db *pg.DB
}

// CreateSchema creates the intake_jobs table unless it already exists.
func CreateSchema(db *pg.DB) error {
	return db.CreateTable(&jobWrapper{}, &orm.CreateTableOptions{
		IfNotExists: true,
	})
}

func (repo *jobRepository) Create(job *intake.Job) error {
	return repo.db.Insert(&jobWrapper{
		Job:       job,
		State:     intake.JobPending,
		UpdatedAt: job.CreatedAt,
	})
}

func (repo *jobRepository) UpdateState(change intake.StateChange) error {
	res, err := repo.db.Model(&jobWrapper{}).
		Set("state = ?", change.State).
		Set("attempts = ?", change.Attempts).
		Set("last_error = ?", change.Error).
		Set("updated_at = ?", change.At).
		Where("id = ?", change.JobId).
		Update()
	if err != nil {
		return err
	}

	if res.RowsAffected() == 0 {
		return intake.JobNotFoundErr
	}

	return nil
}

func (repo *jobRepository) GetPending() ([]intake.Job, error) {
	var jobs []intake.Job
	var wrappedJobs []jobWrapper

	err := repo.db.Model(&wrappedJobs).
		Where("state IN (?)", pg.In([]intake.JobState{intake.JobPending, intake.JobInFlight})).
		Order("created_at ASC").
		Select()
	if err != nil {
		if err == pg.ErrNoRows {
			return jobs, nil
		}

		return jobs, err
	}

	for _, j := range wrappedJobs {
		jobs = append(jobs, *j.Job)
	}

	return jobs, nil
}
