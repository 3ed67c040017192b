package services

import (
	"context"
	"time"

	"housing-backend/internal/logger"
	"housing-backend/internal/metrics"
	"housing-backend/internal/models"
	"housing-backend/internal/repositories"
	"housing-backend/internal/timeutil"

	"github.com/rs/zerolog"
)

// Locker serializes batch operations across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

// JobService writes the audit records of batch operations.
type JobService struct {
	Store repositories.Store
	Now   func() time.Time
	log   zerolog.Logger
}

func NewJobService(store repositories.Store) *JobService {
	return &JobService{Store: store, Now: timeutil.Now, log: logger.WithComponent("jobs")}
}

// Start creates an unfinished job.
func (s *JobService) Start(ctx context.Context, jobType models.JobType, actorID *int) (*models.Job, error) {
	job := &models.Job{Type: jobType, Started: s.Now(), UserID: actorID}
	if err := s.Store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	s.log.Info().Int("job_id", job.ID).Str("type", string(jobType)).Msg("job started")
	return job, nil
}

// Finish stamps the finish time and note of a started job.
func (s *JobService) Finish(ctx context.Context, job *models.Job, note string) error {
	finished := s.Now()
	job.Finished = &finished
	job.Note = note
	metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(finished.Sub(job.Started).Seconds())
	if err := s.Store.FinishJob(ctx, job); err != nil {
		return err
	}
	s.log.Info().Int("job_id", job.ID).Str("type", string(job.Type)).Str("note", note).Msg("job finished")
	return nil
}

// Record writes a job that already ran, through store. Operations that must
// only leave a job behind on success call it inside their transaction.
func (s *JobService) Record(ctx context.Context, store repositories.JobStore, jobType models.JobType, note string, started time.Time, actorID *int) (*models.Job, error) {
	finished := s.Now()
	job := &models.Job{Type: jobType, Note: note, Started: started, Finished: &finished, UserID: actorID}
	if err := store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	metrics.JobDuration.WithLabelValues(string(jobType)).Observe(finished.Sub(started).Seconds())
	return job, nil
}
