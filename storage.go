package jobcore

import (
	"context"
	"time"
)

// Storage is the persistence contract any backend must satisfy to participate
// in the engine. Implementations must be safe for concurrent
// use; all operations may fail with an error wrapping ErrStorageError on
// backend I/O faults. NotFound semantics are expressed either as an error
// wrapping ErrNotFound (UpdateJob) or as a nil result with a nil error
// (GetJob), per operation below.
type Storage interface {
	// StoreJob inserts a new job. The caller guarantees job.ID is unique.
	StoreJob(ctx context.Context, job *Job) error

	// UpdateJob overwrites the mutable fields of an existing job. Returns an
	// error wrapping ErrNotFound when no row matches job.ID.
	UpdateJob(ctx context.Context, job *Job) error

	// GetJob returns the job, or (nil, nil) if it doesn't exist.
	GetJob(ctx context.Context, id string) (*Job, error)

	// DeleteJob removes a job. Deleting a missing id is not an error.
	DeleteJob(ctx context.Context, id string) error

	// GetScheduledJobs returns up to batchSize jobs with state=Scheduled and
	// scheduled_at <= now, ordered by scheduled_at ascending.
	GetScheduledJobs(ctx context.Context, now time.Time, batchSize int) ([]*Job, error)

	// GetJobsByState returns up to batchSize jobs in the given state, ordered
	// by created_at ascending.
	GetJobsByState(ctx context.Context, state JobState, batchSize int) ([]*Job, error)

	// GetJobCount returns the exact number of jobs currently in the given
	// state.
	GetJobCount(ctx context.Context, state JobState) (int, error)

	// StoreBatch bulk-inserts jobs, all sharing batch_id=batchID. The caller
	// is responsible for having set BatchID on each job already.
	StoreBatch(ctx context.Context, batchID string, jobs []*Job) error

	// GetBatchJobs returns all jobs with the given batch_id, in any state.
	GetBatchJobs(ctx context.Context, batchID string) ([]*Job, error)

	// StoreContinuation persists a continuation job with
	// parent_job_id=parentID. The caller is responsible for having set
	// ParentJobID on the job already.
	StoreContinuation(ctx context.Context, parentID string, job *Job) error

	// GetContinuations returns all jobs with parent_job_id=parentID and
	// state=AwaitingContinuation.
	GetContinuations(ctx context.Context, parentID string) ([]*Job, error)

	// StoreRecurringJob upserts a recurring job definition on id.
	StoreRecurringJob(ctx context.Context, def *RecurringJob) error

	// GetRecurringJobs returns all recurring definitions with is_enabled=true.
	GetRecurringJobs(ctx context.Context) ([]*RecurringJob, error)

	// RemoveRecurringJob deletes a recurring job definition. Idempotent.
	RemoveRecurringJob(ctx context.Context, id string) error
}
