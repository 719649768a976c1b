package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatsync/internal/infrastructure/queue/port"
)

// Inline is a process-local queue: Enqueue hands the task to the registered
// handler on a new goroutine and returns immediately. Failed tasks are
// logged, not retried. An explicit task id stays reserved while its task
// runs and for the task's Retention afterwards, as asynq does.
// It implements both port.Client and port.Server.
type Inline struct {
	mu       sync.Mutex
	handlers map[string]port.Handler
	ids      map[string]time.Time // zero while running, else end of retention
	closed   bool
	wg       sync.WaitGroup
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time

	enqueued int
}

func NewInline(timeout time.Duration, log zerolog.Logger) *Inline {
	return &Inline{
		handlers: make(map[string]port.Handler),
		ids:      make(map[string]time.Time),
		timeout:  timeout,
		log:      log.With().Str("component", "inline-queue").Logger(),
		now:      time.Now,
	}
}

var (
	_ port.Client = (*Inline)(nil)
	_ port.Server = (*Inline)(nil)
)

func (q *Inline) Register(taskType string, h port.Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskType] = h
}

func (q *Inline) Enqueue(ctx context.Context, t port.Task, opts ...port.EnqueueOption) (string, error) {
	if t.Type == "" {
		return "", errors.New("inline: task type is required")
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", errors.New("inline: queue closed")
	}
	h, ok := q.handlers[t.Type]
	if !ok {
		q.mu.Unlock()
		return "", fmt.Errorf("inline: no handler for %q", t.Type)
	}
	var op port.EnqueueOption
	if len(opts) > 0 {
		op = opts[0]
	}
	q.pruneLocked()
	id := uuid.NewString()
	if op.TaskID != "" {
		id = op.TaskID
		if _, dup := q.ids[id]; dup {
			q.mu.Unlock()
			return id, port.ErrDuplicateTask
		}
		q.ids[id] = time.Time{}
	}
	q.enqueued++
	q.wg.Add(1)
	q.mu.Unlock()

	timeout := q.timeout
	if op.Timeout > 0 {
		timeout = op.Timeout
	}

	go func() {
		defer q.wg.Done()
		if op.TaskID != "" {
			defer q.release(id, op.Retention)
		}
		runCtx := context.WithoutCancel(ctx)
		if timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, timeout)
			defer cancel()
		}
		if err := h(runCtx, t); err != nil {
			q.log.Error().Err(err).Str("task_type", t.Type).Str("task_id", id).Msg("task failed")
		}
	}()
	return id, nil
}

// release keeps a finished task's id reserved for retention.
func (q *Inline) release(id string, retention time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if retention > 0 {
		q.ids[id] = q.now().Add(retention)
		return
	}
	delete(q.ids, id)
}

func (q *Inline) pruneLocked() {
	now := q.now()
	for id, until := range q.ids {
		if !until.IsZero() && !now.Before(until) {
			delete(q.ids, id)
		}
	}
}

// Enqueued returns how many tasks were accepted.
func (q *Inline) Enqueued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueued
}

// Wait blocks until every accepted task has finished.
func (q *Inline) Wait() {
	q.wg.Wait()
}

// Run blocks until ctx is done and then drains in-flight tasks.
func (q *Inline) Run(ctx context.Context) error {
	<-ctx.Done()
	return q.Stop(context.Background())
}

func (q *Inline) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Inline) Close() error {
	return q.Stop(context.Background())
}
