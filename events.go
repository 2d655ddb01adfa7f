package jobcore

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event type constants, following CloudEvents reverse-DNS convention under
// this module's own com.jobcore.* namespace.
const (
	EventTypeProcessorStarted = "com.jobcore.processor.started"
	EventTypeProcessorStopped = "com.jobcore.processor.stopped"
	EventTypeWorkerStarted    = "com.jobcore.worker.started"
	EventTypeWorkerStopped    = "com.jobcore.worker.stopped"
	EventTypeJobScheduled     = "com.jobcore.job.scheduled"
	EventTypeJobStarted       = "com.jobcore.job.started"
	EventTypeJobSucceeded     = "com.jobcore.job.succeeded"
	EventTypeJobFailed        = "com.jobcore.job.failed"
	EventTypeJobAbandoned     = "com.jobcore.job.abandoned"
	EventTypeJobCancelled     = "com.jobcore.job.cancelled"
	EventTypeRecurringFired   = "com.jobcore.recurring.fired"
)

// EventEmitter lets a Processor publish lifecycle events as CloudEvents. It is
// optional; a nil emitter on Processor simply means no events are published.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event cloudevents.Event) error
}

func newLifecycleEvent(eventType string, data map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetType(eventType)
	event.SetSource("jobcore")
	event.SetID(uuid.NewString())
	event.SetTime(time.Now())
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

// emit publishes eventType via p.emitter if one is configured; emission
// failures are logged and never fail the caller.
func (p *Processor) emit(ctx context.Context, eventType string, data map[string]any) {
	if p.emitter == nil {
		return
	}
	event := newLifecycleEvent(eventType, data)
	if err := p.emitter.EmitEvent(ctx, event); err != nil {
		p.logger.Warn("failed to emit event", "event_type", eventType, "error", err)
	}
}
