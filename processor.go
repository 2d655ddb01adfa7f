package jobcore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Processor is the execution side of the engine. It polls Storage
// for due work, dispatches it across a bounded worker pool, and applies the
// retry/continuation/batch cascade rules on completion. The zero value is not
// usable; build one with NewProcessor.
type Processor struct {
	storage  Storage
	registry *HandlerRegistry
	config   ProcessorConfig
	logger   Logger
	emitter  EventEmitter

	mu        sync.Mutex
	isStarted bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	slots     chan struct{}
}

// NewProcessor builds a Processor over storage and registry, applying opts
// over the built-in defaults.
func NewProcessor(storage Storage, registry *HandlerRegistry, opts ...ProcessorOption) *Processor {
	p := &Processor{
		storage:  storage,
		registry: registry,
		config:   defaultProcessorConfig(),
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the scheduled-jobs and recurring-jobs polling loops. It is
// idempotent: calling Start on an already-started Processor is a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isStarted {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.slots = make(chan struct{}, p.config.MaxConcurrentJobs)
	p.isStarted = true

	p.wg.Add(2)
	go p.runScheduledLoop(runCtx)
	go p.runRecurringLoop(runCtx)

	p.logger.Info("processor started",
		"max_concurrent_jobs", p.config.MaxConcurrentJobs,
		"polling_interval", p.config.PollingInterval,
		"recurring_polling_interval", p.config.RecurringPollingInterval,
	)
	p.emit(ctx, EventTypeProcessorStarted, nil)
	return nil
}

// Stop signals both polling loops to exit and waits up to
// config.ShutdownTimeout for in-flight workers to finish. It is idempotent.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isStarted {
		p.mu.Unlock()
		return nil
	}
	p.isStarted = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("processor stopped")
		p.emit(ctx, EventTypeProcessorStopped, nil)
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("processor stop timed out waiting for in-flight jobs")
		p.emit(ctx, EventTypeProcessorStopped, map[string]any{"timed_out": true})
		return fmt.Errorf("jobcore: processor stop timed out after %s", p.config.ShutdownTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) runScheduledLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.dispatchDueJobs(ctx)
		}
	}
}

func (p *Processor) runRecurringLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.RecurringPollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.materializeRecurringJobs(ctx)
		}
	}
}

// dispatchDueJobs fetches a batch of due Scheduled jobs and hands each to a
// worker slot, blocking if the pool is saturated: bounded concurrency, no
// unbounded goroutine fan-out.
func (p *Processor) dispatchDueJobs(ctx context.Context) {
	jobs, err := p.storage.GetScheduledJobs(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to fetch scheduled jobs", "error", err)
		return
	}

	for _, job := range jobs {
		job := job
		select {
		case p.slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer func() { <-p.slots }()
			p.emit(ctx, EventTypeWorkerStarted, map[string]any{"job_id": job.ID})
			defer p.emit(ctx, EventTypeWorkerStopped, map[string]any{"job_id": job.ID})
			p.executeJob(ctx, job)
		}()
	}
}

// executeJob re-checks the job's state immediately before running it, since
// time may have passed between dispatchDueJobs's fetch and this goroutine
// getting a slot: a job cancelled in the interim is simply skipped.
func (p *Processor) executeJob(ctx context.Context, job *Job) {
	current, err := p.storage.GetJob(ctx, job.ID)
	if err != nil {
		p.logger.Error("failed to reload job before execution", "job_id", job.ID, "error", err)
		return
	}
	if current == nil || current.State != JobStateScheduled {
		return
	}
	job = current

	now := time.Now()
	job.State = JobStateProcessing
	job.ExecutedAt = &now
	if err := p.storage.UpdateJob(ctx, job); err != nil {
		p.logger.Error("failed to mark job processing", "job_id", job.ID, "error", err)
		return
	}
	p.emit(ctx, EventTypeJobStarted, map[string]any{"job_id": job.ID, "type_name": job.TypeName})

	handle, ok := p.registry.Lookup(job.TypeName)
	if !ok {
		p.failJob(ctx, job, JobExecutionResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("%s: %q", ErrHandlerNotFound, job.TypeName),
			ShouldRetry:  false,
		})
		return
	}

	result, err := handle(ctx, job.Arguments)
	if err != nil {
		result = FailedFromError(err, nil)
	}

	if result.Success {
		p.succeedJob(ctx, job, result)
	} else {
		p.failJob(ctx, job, result)
	}
}

func (p *Processor) succeedJob(ctx context.Context, job *Job, result JobExecutionResult) {
	job.State = JobStateSucceeded
	job.Result = result.Result
	job.ErrorMessage = nil
	if err := p.storage.UpdateJob(ctx, job); err != nil {
		p.logger.Error("failed to mark job succeeded", "job_id", job.ID, "error", err)
		return
	}
	p.logger.Info("job succeeded", "job_id", job.ID, "type_name", job.TypeName)
	p.emit(ctx, EventTypeJobSucceeded, map[string]any{"job_id": job.ID, "type_name": job.TypeName})

	p.dispatchContinuations(ctx, job.ID)
	if job.BatchID != "" {
		p.checkBatchCompletion(ctx, job.BatchID)
	}
}

func (p *Processor) failJob(ctx context.Context, job *Job, result JobExecutionResult) {
	errMsg := result.ErrorMessage
	job.ErrorMessage = &errMsg
	job.RetryCount++

	if result.ShouldRetry && job.RetryCount <= job.MaxRetryCount {
		delay := p.config.DefaultRetryDelay
		if result.RetryDelay != nil {
			delay = *result.RetryDelay
		}
		next := time.Now().Add(delay)
		job.State = JobStateScheduled
		job.ScheduledAt = &next
		if err := p.storage.UpdateJob(ctx, job); err != nil {
			p.logger.Error("failed to reschedule job", "job_id", job.ID, "error", err)
			return
		}
		p.logger.Warn("job failed, retrying", "job_id", job.ID, "retry_count", job.RetryCount, "retry_delay", delay)
		p.emit(ctx, EventTypeJobFailed, map[string]any{"job_id": job.ID, "retry_count": job.RetryCount, "will_retry": true})
		return
	}

	job.State = JobStateAbandoned
	if err := p.storage.UpdateJob(ctx, job); err != nil {
		p.logger.Error("failed to abandon job", "job_id", job.ID, "error", err)
		return
	}
	p.logger.Error("job abandoned", "job_id", job.ID, "type_name", job.TypeName, "error_message", errMsg)
	p.emit(ctx, EventTypeJobAbandoned, map[string]any{"job_id": job.ID, "type_name": job.TypeName})

	if job.BatchID != "" {
		p.checkBatchCompletion(ctx, job.BatchID)
	}
}

// dispatchContinuations promotes every AwaitingContinuation job chained off
// parentID to Scheduled, now that parentID has succeeded.
func (p *Processor) dispatchContinuations(ctx context.Context, parentID string) {
	continuations, err := p.storage.GetContinuations(ctx, parentID)
	if err != nil {
		p.logger.Error("failed to fetch continuations", "parent_job_id", parentID, "error", err)
		return
	}
	now := time.Now()
	for _, cont := range continuations {
		cont.State = JobStateScheduled
		cont.ScheduledAt = &now
		if err := p.storage.UpdateJob(ctx, cont); err != nil {
			p.logger.Error("failed to dispatch continuation", "job_id", cont.ID, "error", err)
			continue
		}
		p.emit(ctx, EventTypeJobScheduled, map[string]any{"job_id": cont.ID, "parent_job_id": parentID})
	}
}

// checkBatchCompletion promotes every AwaitingBatch job chained off batchID to
// Scheduled once every non-continuation member of the batch has reached a
// terminal state (Succeeded, Abandoned, or Cancelled) — regardless of whether
// any member actually succeeded, since a batch member is cancellable before
// dispatch and that must not stall its continuation forever.
func (p *Processor) checkBatchCompletion(ctx context.Context, batchID string) {
	members, err := p.storage.GetBatchJobs(ctx, batchID)
	if err != nil {
		p.logger.Error("failed to fetch batch members", "batch_id", batchID, "error", err)
		return
	}

	for _, member := range members {
		if member.State == JobStateAwaitingBatch {
			continue
		}
		if !member.State.IsTerminal() {
			return
		}
	}

	now := time.Now()
	for _, member := range members {
		if member.State != JobStateAwaitingBatch {
			continue
		}
		member.State = JobStateScheduled
		member.ScheduledAt = &now
		if err := p.storage.UpdateJob(ctx, member); err != nil {
			p.logger.Error("failed to dispatch batch continuation", "job_id", member.ID, "error", err)
			continue
		}
		p.emit(ctx, EventTypeJobScheduled, map[string]any{"job_id": member.ID, "batch_id": batchID})
	}
}

// materializeRecurringJobs computes, for each enabled recurring definition,
// anchor = last_execution, or (now - 1 minute) on its very first tick, then
// next = cron.NextOccurrence(anchor); a definition fires at most once per
// tick, when next <= now. Missed windows are never backfilled, regardless of
// how long the processor was down.
func (p *Processor) materializeRecurringJobs(ctx context.Context) {
	defs, err := p.storage.GetRecurringJobs(ctx)
	if err != nil {
		p.logger.Error("failed to fetch recurring jobs", "error", err)
		return
	}

	now := time.Now()
	for _, def := range defs {
		schedule, err := Parse(def.CronExpression)
		if err != nil {
			p.logger.Error("invalid cron expression on recurring job", "recurring_job_id", def.ID, "error", err)
			continue
		}

		anchor := now.Add(-time.Minute)
		if def.LastExecution != nil {
			anchor = *def.LastExecution
		}
		next, err := schedule.NextOccurrence(anchor)
		if err != nil {
			p.logger.Error("no future occurrence for recurring job", "recurring_job_id", def.ID, "error", err)
			continue
		}
		if next.After(now) {
			def.NextExecution = &next
			continue
		}

		job := newJob(def.JobTypeName, def.JobArguments, def.MaxRetryCount, &now)
		if err := p.storage.StoreJob(ctx, job); err != nil {
			p.logger.Error("failed to materialize recurring job", "recurring_job_id", def.ID, "error", err)
			continue
		}
		p.emit(ctx, EventTypeRecurringFired, map[string]any{"recurring_job_id": def.ID, "job_id": job.ID})

		followingOccurrence, err := schedule.NextOccurrence(now)
		if err != nil {
			p.logger.Error("no future occurrence for recurring job", "recurring_job_id", def.ID, "error", err)
			continue
		}
		def.LastExecution = &now
		def.NextExecution = &followingOccurrence
		if err := p.storage.StoreRecurringJob(ctx, def); err != nil {
			p.logger.Error("failed to advance recurring job", "recurring_job_id", def.ID, "error", err)
		}
	}
}
