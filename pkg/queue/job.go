package queue

import "context"

// Job defines a queue job handler.
type Job interface {
	// Name returns the unique identifier of the job.
	Name() string

	// Type returns the message type the job handles.
	Type() string

	// Handle processes one message. Memory queues pass the payload as enqueued;
	// Redis queues pass json.RawMessage. Use ParsePayload to accept both.
	Handle(ctx context.Context, payload interface{}) error
}
