package repositories

import (
	"context"
	"fmt"

	"housing-backend/internal/models"
)

type JobRepository struct {
	DB DBTX
}

func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{DB: db}
}

func (r *JobRepository) CreateJob(ctx context.Context, job *models.Job) error {
	err := r.DB.QueryRow(ctx,
		`INSERT INTO jobs (type, note, started, finished, user_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		job.Type, job.Note, job.Started, job.Finished, job.UserID,
	).Scan(&job.ID)
	if err != nil {
		return fmt.Errorf("insert %s job: %w", job.Type, err)
	}
	return nil
}

// FinishJob stores the finish time and the final note
func (r *JobRepository) FinishJob(ctx context.Context, job *models.Job) error {
	tag, err := r.DB.Exec(ctx,
		`UPDATE jobs SET finished = $2, note = $3 WHERE id = $1`, job.ID, job.Finished, job.Note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
