package adapter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"chatsync/internal/infrastructure/queue/port"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineRunsRegisteredHandler(t *testing.T) {
	q := NewInline(time.Second, zerolog.Nop())
	var ran atomic.Int32
	var payload atomic.Value
	q.Register("t", func(ctx context.Context, task port.Task) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		payload.Store(string(task.Payload))
		ran.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	id, err := q.Enqueue(ctx, port.Task{Type: "t", Payload: []byte("x")}, port.EnqueueOption{TaskID: "fixed", Retention: time.Hour})
	cancel()
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)

	_, err = q.Enqueue(context.Background(), port.Task{Type: "t"}, port.EnqueueOption{TaskID: "fixed"})
	assert.ErrorIs(t, err, port.ErrDuplicateTask)

	q.Wait()
	assert.EqualValues(t, 1, ran.Load(), "caller cancellation does not abort the task")
	assert.Equal(t, "x", payload.Load())
	assert.Equal(t, 1, q.Enqueued())
}

func TestInlineReleasesTaskIDsAfterRetention(t *testing.T) {
	q := NewInline(0, zerolog.Nop())
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }
	release := make(chan struct{})
	q.Register("t", func(context.Context, port.Task) error {
		<-release
		return nil
	})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, port.Task{Type: "t"}, port.EnqueueOption{TaskID: "m1", Retention: time.Minute})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, port.Task{Type: "t"}, port.EnqueueOption{TaskID: "m1", Retention: time.Minute})
	assert.ErrorIs(t, err, port.ErrDuplicateTask, "reserved while running")

	now = now.Add(time.Hour)
	_, err = q.Enqueue(ctx, port.Task{Type: "t"}, port.EnqueueOption{TaskID: "m1", Retention: time.Minute})
	assert.ErrorIs(t, err, port.ErrDuplicateTask, "retention starts when the task finishes")

	close(release)
	q.Wait()
	_, err = q.Enqueue(ctx, port.Task{Type: "t"}, port.EnqueueOption{TaskID: "m1", Retention: time.Minute})
	assert.ErrorIs(t, err, port.ErrDuplicateTask, "reserved during retention")

	now = now.Add(time.Minute)
	_, err = q.Enqueue(ctx, port.Task{Type: "t"}, port.EnqueueOption{TaskID: "m1"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, port.Task{Type: "t"})
	require.NoError(t, err)
	q.Wait()

	assert.Empty(t, q.ids, "ids without retention are released on completion")
	assert.Equal(t, 3, q.Enqueued())
}

func TestInlineRejects(t *testing.T) {
	q := NewInline(0, zerolog.Nop())
	_, err := q.Enqueue(context.Background(), port.Task{})
	assert.Error(t, err)
	_, err = q.Enqueue(context.Background(), port.Task{Type: "unknown"})
	assert.Error(t, err)

	q.Register("t", func(context.Context, port.Task) error { return errors.New("boom") })
	_, err = q.Enqueue(context.Background(), port.Task{Type: "t"})
	require.NoError(t, err, "handler failures are logged, not returned")

	require.NoError(t, q.Close())
	_, err = q.Enqueue(context.Background(), port.Task{Type: "t"})
	assert.Error(t, err)
}

func TestInlineRunDrainsOnCancel(t *testing.T) {
	q := NewInline(0, zerolog.Nop())
	release := make(chan struct{})
	var done atomic.Bool
	q.Register("slow", func(context.Context, port.Task) error {
		<-release
		done.Store(true)
		return nil
	})
	_, err := q.Enqueue(context.Background(), port.Task{Type: "slow"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- q.Run(ctx) }()
	cancel()
	close(release)

	select {
	case err := <-finished:
		assert.NoError(t, err)
		assert.True(t, done.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestParseQueueWeights(t *testing.T) {
	w, err := ParseQueueWeights(" chat=6, default ,")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"chat": 6, "default": 1}, w)

	_, err = ParseQueueWeights("chat=0")
	assert.Error(t, err)
	_, err = ParseQueueWeights("chat=high")
	assert.Error(t, err)
}
