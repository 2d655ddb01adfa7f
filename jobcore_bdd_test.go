package jobcore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"
)

// jobcoreBDDTestContext carries the state a single scenario threads through
// its steps.
type jobcoreBDDTestContext struct {
	store     Storage
	registry  *HandlerRegistry
	client    *Client
	processor *Processor

	jobID          string
	parentID       string
	continuationID string
	batchID        string
	batchContID    string

	mu         sync.Mutex
	dispatched bool
}

func (c *jobcoreBDDTestContext) setDispatched() {
	c.mu.Lock()
	c.dispatched = true
	c.mu.Unlock()
}

func (c *jobcoreBDDTestContext) wasDispatched() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatched
}

func (c *jobcoreBDDTestContext) reset() {
	c.store = NewMemStorage()
	c.registry = NewHandlerRegistry()
	c.client = NewClient(c.store)
	c.processor = nil
	c.jobID = ""
	c.parentID = ""
	c.continuationID = ""
	c.batchID = ""
	c.batchContID = ""
	c.dispatched = false
}

func (c *jobcoreBDDTestContext) iHaveAProcessorWithAFreshInMemoryStore() error {
	c.reset()
	return nil
}

func (c *jobcoreBDDTestContext) iHaveRegisteredAHandlerThatSucceedsWith(typeName, result string) error {
	RegisterTyped(c.registry, typeName, func(ctx context.Context, args string) (JobExecutionResult, error) {
		c.setDispatched()
		return Succeeded(strPtr(result)), nil
	})
	return nil
}

func (c *jobcoreBDDTestContext) iHaveRegisteredAHandlerThatRetryablyFailsWith(typeName, message string) error {
	delay := 5 * time.Millisecond
	RegisterTyped(c.registry, typeName, func(ctx context.Context, args string) (JobExecutionResult, error) {
		return Failed(message, true, &delay), nil
	})
	return nil
}

func (c *jobcoreBDDTestContext) iHaveRegisteredAHandlerThatNonRetryablyFailsWith(typeName, message string) error {
	RegisterTyped(c.registry, typeName, func(ctx context.Context, args string) (JobExecutionResult, error) {
		return Failed(message, false, nil), nil
	})
	return nil
}

func (c *jobcoreBDDTestContext) iEnqueueAJobWithMaxRetry(typeName string, maxRetry int) error {
	id, err := c.client.Enqueue(context.Background(), typeName, nil, maxRetry)
	c.jobID = id
	return err
}

func (c *jobcoreBDDTestContext) iEnqueueAParentJob(typeName string) error {
	id, err := c.client.Enqueue(context.Background(), typeName, nil, 0)
	c.parentID = id
	return err
}

func (c *jobcoreBDDTestContext) iAttachAContinuationJobToTheParent(typeName string) error {
	id, err := c.client.ContinueWith(context.Background(), c.parentID, typeName, nil, 0)
	c.continuationID = id
	return err
}

func (c *jobcoreBDDTestContext) iEnqueueABatchOfJobs(n int, typeName string) error {
	items := make([]BatchItem, n)
	for i := range items {
		items[i] = BatchItem{TypeName: typeName}
	}
	batchID, _, err := c.client.EnqueueBatch(context.Background(), items)
	c.batchID = batchID
	return err
}

func (c *jobcoreBDDTestContext) iAttachABatchContinuationJob() error {
	id, err := c.client.ContinueBatchWith(context.Background(), c.batchID, "Echo", nil, 0)
	c.batchContID = id
	return err
}

func (c *jobcoreBDDTestContext) iScheduleAJobToRunInHours(typeName string, hours int) error {
	id, err := c.client.ScheduleAt(context.Background(), typeName, nil, 0, time.Now().Add(time.Duration(hours)*time.Hour))
	c.jobID = id
	return err
}

func (c *jobcoreBDDTestContext) iCancelThatJob() error {
	return c.client.CancelJob(context.Background(), c.jobID)
}

func (c *jobcoreBDDTestContext) iRegisterARecurringJobWithCron(expr string) error {
	return c.client.AddOrUpdateRecurringJob(context.Background(), "r1", expr, "Echo", nil, 0)
}

func (c *jobcoreBDDTestContext) iStartTheProcessor() error {
	c.processor = NewProcessor(c.store, c.registry,
		WithPollingInterval(10*time.Millisecond),
		WithRecurringPollingInterval(10*time.Millisecond),
	)
	return c.processor.Start(context.Background())
}

func (c *jobcoreBDDTestContext) pollJobState(id string, want JobState) (*Job, error) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := c.store.GetJob(context.Background(), id)
		if err != nil {
			return nil, err
		}
		if job != nil && job.State == want {
			return job, nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil, fmt.Errorf("job %s did not reach state %s in time", id, want)
}

func (c *jobcoreBDDTestContext) theJobShouldReachStateWithResult(state, result string) error {
	job, err := c.pollJobState(c.jobID, stateFromString(state))
	if err != nil {
		return err
	}
	if job.Result == nil || *job.Result != result {
		return fmt.Errorf("expected result %q, got %v", result, job.Result)
	}
	return nil
}

func (c *jobcoreBDDTestContext) theJobRetryCountShouldBe(n int) error {
	job, err := c.store.GetJob(context.Background(), c.jobID)
	if err != nil {
		return err
	}
	if job.RetryCount != n {
		return fmt.Errorf("expected retry_count %d, got %d", n, job.RetryCount)
	}
	return nil
}

func (c *jobcoreBDDTestContext) theJobShouldReachState(state string) error {
	_, err := c.pollJobState(c.jobID, stateFromString(state))
	return err
}

func (c *jobcoreBDDTestContext) theJobErrorMessageShouldBe(message string) error {
	job, err := c.store.GetJob(context.Background(), c.jobID)
	if err != nil {
		return err
	}
	if job.ErrorMessage == nil || *job.ErrorMessage != message {
		return fmt.Errorf("expected error_message %q, got %v", message, job.ErrorMessage)
	}
	return nil
}

func (c *jobcoreBDDTestContext) theParentJobShouldReachState(state string) error {
	_, err := c.pollJobState(c.parentID, stateFromString(state))
	return err
}

func (c *jobcoreBDDTestContext) theContinuationJobShouldReachState(state string) error {
	_, err := c.pollJobState(c.continuationID, stateFromString(state))
	return err
}

func (c *jobcoreBDDTestContext) theBatchContinuationJobShouldReachState(state string) error {
	_, err := c.pollJobState(c.batchContID, stateFromString(state))
	return err
}

func (c *jobcoreBDDTestContext) theJobShouldNeverBeDispatched() error {
	time.Sleep(100 * time.Millisecond)
	if c.wasDispatched() {
		return fmt.Errorf("expected job not to be dispatched, but it was")
	}
	return nil
}

func (c *jobcoreBDDTestContext) theJobShouldRemainInState(state string) error {
	job, err := c.store.GetJob(context.Background(), c.jobID)
	if err != nil {
		return err
	}
	if job.State != stateFromString(state) {
		return fmt.Errorf("expected state %s, got %s", state, job.State)
	}
	return nil
}

func (c *jobcoreBDDTestContext) atLeastOneJobShouldBeMaterializedFromTheRecurringJob() error {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		count, err := c.store.GetJobCount(context.Background(), JobStateSucceeded)
		if err != nil {
			return err
		}
		if count >= 1 {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("no recurring job materialized in time")
}

func stateFromString(s string) JobState {
	switch s {
	case "Created":
		return JobStateCreated
	case "Scheduled":
		return JobStateScheduled
	case "Processing":
		return JobStateProcessing
	case "Succeeded":
		return JobStateSucceeded
	case "Failed":
		return JobStateFailed
	case "Cancelled":
		return JobStateCancelled
	case "Abandoned":
		return JobStateAbandoned
	case "AwaitingContinuation":
		return JobStateAwaitingContinuation
	case "AwaitingBatch":
		return JobStateAwaitingBatch
	default:
		return -1
	}
}

func TestJobcoreBDD(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(s *godog.ScenarioContext) {
			c := &jobcoreBDDTestContext{}

			s.Given(`^I have a processor with a fresh in-memory store$`, c.iHaveAProcessorWithAFreshInMemoryStore)
			s.Given(`^I have registered an? "([^"]*)" handler that succeeds with "([^"]*)"$`, c.iHaveRegisteredAHandlerThatSucceedsWith)
			s.Given(`^I have registered an? "([^"]*)" handler that retryably fails with "([^"]*)"$`, c.iHaveRegisteredAHandlerThatRetryablyFailsWith)
			s.Given(`^I have registered an? "([^"]*)" handler that non-retryably fails with "([^"]*)"$`, c.iHaveRegisteredAHandlerThatNonRetryablyFailsWith)

			s.When(`^I enqueue an? "([^"]*)" job with max retry (\d+)$`, c.iEnqueueAJobWithMaxRetry)
			s.When(`^I enqueue a parent "([^"]*)" job$`, c.iEnqueueAParentJob)
			s.When(`^I attach a continuation "([^"]*)" job to the parent$`, c.iAttachAContinuationJobToTheParent)
			s.When(`^I enqueue a batch of (\d+) "([^"]*)" jobs$`, c.iEnqueueABatchOfJobs)
			s.When(`^I attach a batch continuation job$`, c.iAttachABatchContinuationJob)
			s.When(`^I schedule an? "([^"]*)" job to run in (\d+) hour$`, c.iScheduleAJobToRunInHours)
			s.When(`^I cancel that job$`, c.iCancelThatJob)
			s.When(`^I register a recurring job with cron "([^"]*)"$`, c.iRegisterARecurringJobWithCron)
			s.When(`^I start the processor$`, c.iStartTheProcessor)

			s.Then(`^the job should reach state "([^"]*)" with result "([^"]*)"$`, c.theJobShouldReachStateWithResult)
			s.Then(`^the job retry count should be (\d+)$`, c.theJobRetryCountShouldBe)
			s.Then(`^the job should reach state "([^"]*)"$`, c.theJobShouldReachState)
			s.Then(`^the job error message should be "([^"]*)"$`, c.theJobErrorMessageShouldBe)
			s.Then(`^the parent job should reach state "([^"]*)"$`, c.theParentJobShouldReachState)
			s.Then(`^the continuation job should reach state "([^"]*)"$`, c.theContinuationJobShouldReachState)
			s.Then(`^the batch continuation job should reach state "([^"]*)"$`, c.theBatchContinuationJobShouldReachState)
			s.Then(`^the job should never be dispatched$`, c.theJobShouldNeverBeDispatched)
			s.Then(`^the job should remain in state "([^"]*)"$`, c.theJobShouldRemainInState)
			s.Then(`^at least one job should be materialized from the recurring job$`, c.atLeastOneJobShouldBeMaterializedFromTheRecurringJob)

			s.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
				if c.processor != nil {
					_ = c.processor.Stop(context.Background())
				}
				return ctx, err
			})
		},
		Options: &godog.Options{
			Format: "progress",
			Paths:  []string{"features/jobcore.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
