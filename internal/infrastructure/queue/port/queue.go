package port

import (
	"context"
	"errors"
	"time"
)

// Task is one unit of background work. The payload encoding belongs to
// whoever registers the handler for Type.
type Task struct {
	Type    string
	Payload []byte
}

// Handler runs a task. A non-nil error hands the task back to the adapter's
// retry policy, so handlers must tolerate running more than once.
type Handler func(ctx context.Context, task Task) error

// EnqueueOption tunes one Enqueue call. Zero fields fall back to the
// adapter defaults.
type EnqueueOption struct {
	Queue    string
	MaxRetry int
	Timeout  time.Duration // budget of a single attempt
	// TaskID deduplicates: a second task with the same id is refused with
	// ErrDuplicateTask while the first one is pending or retained.
	TaskID    string
	Retention time.Duration // how long a finished task keeps its id reserved
}

// ErrDuplicateTask is returned by Enqueue for a TaskID already known to the
// queue.
var ErrDuplicateTask = errors.New("queue: duplicate task id")

// Client is the producing side.
type Client interface {
	Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (id string, err error)
	Close() error
}

// Server is the consuming side. Run blocks until ctx is done or Stop is
// called.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}
