package jobcore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Client is the submission-side API. It talks only to Storage; a
// Processor elsewhere picks up what it submits. A Client is safe for
// concurrent use, since Storage is required to be.
type Client struct {
	storage Storage
	emitter EventEmitter
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithClientEventEmitter sets the Client's event emitter, used to publish
// cancellation events. Optional; a nil emitter means no events are published.
func WithClientEventEmitter(emitter EventEmitter) ClientOption {
	return func(c *Client) {
		c.emitter = emitter
	}
}

// NewClient builds a Client over storage.
func NewClient(storage Storage, opts ...ClientOption) *Client {
	c := &Client{storage: storage}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) emit(ctx context.Context, eventType string, data map[string]any) {
	if c.emitter == nil {
		return
	}
	event := newLifecycleEvent(eventType, data)
	_ = c.emitter.EmitEvent(ctx, event)
}

func marshalArguments(arguments any) (*string, error) {
	if arguments == nil {
		return nil, nil
	}
	data, err := json.Marshal(arguments)
	if err != nil {
		return nil, fmt.Errorf("jobcore: marshal arguments: %w", err)
	}
	encoded := string(data)
	return &encoded, nil
}

func newJob(typeName string, arguments *string, maxRetryCount int, scheduledAt *time.Time) *Job {
	now := time.Now()
	state := JobStateScheduled
	if scheduledAt == nil {
		scheduledAt = &now
	}
	return &Job{
		ID:            uuid.NewString(),
		TypeName:      typeName,
		Arguments:     arguments,
		State:         state,
		CreatedAt:     now,
		ScheduledAt:   scheduledAt,
		MaxRetryCount: maxRetryCount,
	}
}

// Enqueue submits typeName/arguments for immediate processing (as soon as a
// worker is free), retrying up to maxRetryCount times on failure. It returns
// the new job's id.
func (c *Client) Enqueue(ctx context.Context, typeName string, arguments any, maxRetryCount int) (string, error) {
	encoded, err := marshalArguments(arguments)
	if err != nil {
		return "", err
	}
	now := time.Now()
	job := newJob(typeName, encoded, maxRetryCount, &now)
	if err := c.storage.StoreJob(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// ScheduleAt submits typeName/arguments to run no earlier than runAt.
func (c *Client) ScheduleAt(ctx context.Context, typeName string, arguments any, maxRetryCount int, runAt time.Time) (string, error) {
	encoded, err := marshalArguments(arguments)
	if err != nil {
		return "", err
	}
	job := newJob(typeName, encoded, maxRetryCount, &runAt)
	if err := c.storage.StoreJob(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// ScheduleIn submits typeName/arguments to run no earlier than delay from now.
func (c *Client) ScheduleIn(ctx context.Context, typeName string, arguments any, maxRetryCount int, delay time.Duration) (string, error) {
	return c.ScheduleAt(ctx, typeName, arguments, maxRetryCount, time.Now().Add(delay))
}

// ContinueWith schedules a follow-up job in AwaitingContinuation, to be
// dispatched by the Processor once parentID reaches Succeeded. It returns
// the continuation job's id.
func (c *Client) ContinueWith(ctx context.Context, parentID, typeName string, arguments any, maxRetryCount int) (string, error) {
	encoded, err := marshalArguments(arguments)
	if err != nil {
		return "", err
	}
	job := newJob(typeName, encoded, maxRetryCount, nil)
	job.State = JobStateAwaitingContinuation
	job.ParentJobID = parentID
	if err := c.storage.StoreContinuation(ctx, parentID, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// BatchItem is one member of a batch submitted via EnqueueBatch.
type BatchItem struct {
	TypeName      string
	Arguments     any
	MaxRetryCount int
}

// EnqueueBatch submits items as a single batch sharing a new batch_id. Members
// start Scheduled, runnable independently and immediately — the only reading
// consistent with members being individually retriable while still
// completable as a set. It returns the shared batch id and the per-item job
// ids, in the same order as items, so the caller can correlate a submitted
// item back to its job without re-querying storage.
func (c *Client) EnqueueBatch(ctx context.Context, items []BatchItem) (string, []string, error) {
	batchID := uuid.NewString()
	now := time.Now()
	jobs := make([]*Job, 0, len(items))
	jobIDs := make([]string, 0, len(items))
	for _, item := range items {
		encoded, err := marshalArguments(item.Arguments)
		if err != nil {
			return "", nil, err
		}
		job := newJob(item.TypeName, encoded, item.MaxRetryCount, &now)
		job.BatchID = batchID
		jobs = append(jobs, job)
		jobIDs = append(jobIDs, job.ID)
	}
	if err := c.storage.StoreBatch(ctx, batchID, jobs); err != nil {
		return "", nil, err
	}
	return batchID, jobIDs, nil
}

// ContinueBatchWith schedules a follow-up job in AwaitingBatch, to be
// dispatched by the Processor once every non-continuation member of batchID
// has reached a terminal state (Succeeded, Abandoned, or Cancelled). It
// returns the continuation job's id.
func (c *Client) ContinueBatchWith(ctx context.Context, batchID, typeName string, arguments any, maxRetryCount int) (string, error) {
	encoded, err := marshalArguments(arguments)
	if err != nil {
		return "", err
	}
	job := newJob(typeName, encoded, maxRetryCount, nil)
	job.State = JobStateAwaitingBatch
	job.BatchID = batchID
	if err := c.storage.StoreJob(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// AddOrUpdateRecurringJob validates cronExpression and upserts a recurring
// job definition under id, pre-computing its first NextExecution from now.
func (c *Client) AddOrUpdateRecurringJob(ctx context.Context, id, cronExpression, jobTypeName string, arguments any, maxRetryCount int) error {
	schedule, err := Parse(cronExpression)
	if err != nil {
		return err
	}
	encoded, err := marshalArguments(arguments)
	if err != nil {
		return err
	}
	now := time.Now()
	next, err := schedule.NextOccurrence(now)
	if err != nil {
		return err
	}
	def := &RecurringJob{
		ID:             id,
		CronExpression: cronExpression,
		JobTypeName:    jobTypeName,
		JobArguments:   encoded,
		MaxRetryCount:  maxRetryCount,
		NextExecution:  &next,
		IsEnabled:      true,
		CreatedAt:      now,
	}
	return c.storage.StoreRecurringJob(ctx, def)
}

// RemoveRecurringJob deletes the recurring job definition under id.
func (c *Client) RemoveRecurringJob(ctx context.Context, id string) error {
	return c.storage.RemoveRecurringJob(ctx, id)
}

// CancelJob transitions a job to Cancelled. This only succeeds from
// Scheduled; a job already Processing or in a terminal state returns a plain
// descriptive error rather than a sentinel.
func (c *Client) CancelJob(ctx context.Context, id string) error {
	job, err := c.storage.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("%w: job %q", ErrNotFound, id)
	}
	if job.State != JobStateScheduled {
		return fmt.Errorf("jobcore: cannot cancel job %q in state %s", id, job.State)
	}
	job.State = JobStateCancelled
	if err := c.storage.UpdateJob(ctx, job); err != nil {
		return err
	}
	c.emit(ctx, EventTypeJobCancelled, map[string]any{"job_id": job.ID, "type_name": job.TypeName})
	return nil
}

// DeleteJob permanently removes a job regardless of state.
func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.storage.DeleteJob(ctx, id)
}

// GetJob returns the job, or (nil, nil) if it doesn't exist.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	return c.storage.GetJob(ctx, id)
}

// GetJobCount returns how many jobs currently sit in state.
func (c *Client) GetJobCount(ctx context.Context, state JobState) (int, error) {
	return c.storage.GetJobCount(ctx, state)
}
