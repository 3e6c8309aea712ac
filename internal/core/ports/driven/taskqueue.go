package driven

import "context"

// Task is a unit of background work.
type Task struct {
	// Kind names the handler that should process the task.
	Kind string

	// ItemID is the item the task concerns.
	ItemID string
}

// TaskQueue decouples background work (the Connect step, connection
// discovery) from the request/response path. Enqueue is fire-and-forget
// from the caller's perspective. Delivery is at-least-once and handlers
// must be idempotent.
type TaskQueue interface {
	// Enqueue submits a task for background processing. It does not
	// block on task execution.
	Enqueue(ctx context.Context, task Task) error
}
