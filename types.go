package jobcore

import "time"

// JobState is the lifecycle state of a Job. The numeric values are part of the
// persisted contract: storage adapters may store them as-is.
type JobState int

const (
	JobStateCreated JobState = iota
	JobStateScheduled
	JobStateProcessing
	JobStateSucceeded
	JobStateFailed
	JobStateCancelled
	JobStateAbandoned
	JobStateAwaitingContinuation
	JobStateAwaitingBatch
)

// String renders the state for logging and events.
func (s JobState) String() string {
	switch s {
	case JobStateCreated:
		return "Created"
	case JobStateScheduled:
		return "Scheduled"
	case JobStateProcessing:
		return "Processing"
	case JobStateSucceeded:
		return "Succeeded"
	case JobStateFailed:
		return "Failed"
	case JobStateCancelled:
		return "Cancelled"
	case JobStateAbandoned:
		return "Abandoned"
	case JobStateAwaitingContinuation:
		return "AwaitingContinuation"
	case JobStateAwaitingBatch:
		return "AwaitingBatch"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s is one of the three states the processor never leaves:
// Succeeded, Abandoned, Cancelled.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateSucceeded, JobStateAbandoned, JobStateCancelled:
		return true
	default:
		return false
	}
}

// Job is a single unit of deferred work. Once a Job has been submitted, the
// Processor is its only writer apart from Client.CancelJob and Client.DeleteJob.
type Job struct {
	ID            string
	TypeName      string
	Arguments     *string
	State         JobState
	CreatedAt     time.Time
	ScheduledAt   *time.Time
	ExecutedAt    *time.Time
	RetryCount    int
	MaxRetryCount int
	ErrorMessage  *string
	Result        *string
	BatchID       string
	ParentJobID   string
}

// RecurringJob is a cron-driven template that materializes new Jobs on each fire.
type RecurringJob struct {
	ID             string
	CronExpression string
	JobTypeName    string
	JobArguments   *string
	MaxRetryCount  int
	NextExecution  *time.Time
	LastExecution  *time.Time
	IsEnabled      bool
	CreatedAt      time.Time
}

// JobExecutionResult is what a Handler returns after processing a payload.
type JobExecutionResult struct {
	Success      bool
	Result       *string
	ErrorMessage string
	ShouldRetry  bool
	RetryDelay   *time.Duration
}

// Succeeded builds a successful JobExecutionResult, optionally carrying an opaque result
// payload.
func Succeeded(result *string) JobExecutionResult {
	return JobExecutionResult{Success: true, Result: result}
}

// Failed builds a failed JobExecutionResult. shouldRetry controls whether the processor
// will reschedule the job (subject to max_retry_count); retryDelay overrides the
// processor's default_retry_delay when set.
func Failed(errorMessage string, shouldRetry bool, retryDelay *time.Duration) JobExecutionResult {
	return JobExecutionResult{
		Success:      false,
		ErrorMessage: errorMessage,
		ShouldRetry:  shouldRetry,
		RetryDelay:   retryDelay,
	}
}

// FailedFromError builds a failed, retryable JobExecutionResult from a Go
// error, for a handler that returned an error instead of a result.
func FailedFromError(err error, retryDelay *time.Duration) JobExecutionResult {
	return JobExecutionResult{
		Success:      false,
		ErrorMessage: err.Error(),
		ShouldRetry:  true,
		RetryDelay:   retryDelay,
	}
}

func strPtr(s string) *string { return &s }
