package task

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	qport "chatsync/internal/infrastructure/queue/port"
	chat "chatsync/internal/pkg/chat/application/domain"
	"chatsync/internal/pkg/chat/persistence/repository/adapter"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	tasks    []qport.Task
	opts     []qport.EnqueueOption
	handlers map[string]qport.Handler
	err      error
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{handlers: map[string]qport.Handler{}}
}

func (q *recordingQueue) Enqueue(_ context.Context, t qport.Task, opts ...qport.EnqueueOption) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.tasks = append(q.tasks, t)
	q.opts = append(q.opts, opts...)
	return "id", nil
}

func (q *recordingQueue) Close() error                             { return nil }
func (q *recordingQueue) Register(taskType string, h qport.Handler) { q.handlers[taskType] = h }
func (q *recordingQueue) Run(context.Context) error                { return nil }
func (q *recordingQueue) Stop(context.Context) error               { return nil }

func sample() chat.Message {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return chat.Message{ID: "5b0c1f4e-0000-4000-8000-000000000001", ConversationID: "c1", SenderID: "alice", Content: "hi", SentAt: ts, UpdatedAt: ts}
}

func TestQueueDispatcherEnqueuesByMessageID(t *testing.T) {
	q := newRecordingQueue()
	m := sample()

	out, err := NewQueueDispatcher(q).Dispatch(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, m, *out)

	require.Len(t, q.tasks, 1)
	assert.Equal(t, SendMessageTaskType, q.tasks[0].Type)
	assert.Equal(t, qport.EnqueueOption{Queue: SendMessageQueue, MaxRetry: 10, TaskID: m.ID, Retention: time.Hour}, q.opts[0])

	var p SendMessageTaskPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload, &p))
	assert.Equal(t, m, p.message())

	q.err = qport.ErrDuplicateTask
	out, err = NewQueueDispatcher(q).Dispatch(context.Background(), m)
	require.NoError(t, err, "already queued")
	assert.Equal(t, m.ID, out.ID)

	q.err = errors.New("redis down")
	_, err = NewQueueDispatcher(q).Dispatch(context.Background(), m)
	assert.Error(t, err)
}

func TestSendMessageHandler(t *testing.T) {
	q := newRecordingQueue()
	repo := adapter.NewMemoryChatRepository(nil)
	RegisterSendMessageTask(q, repo, zerolog.Nop())
	h := q.handlers[SendMessageTaskType]
	require.NotNil(t, h)

	_, err := NewQueueDispatcher(q).Dispatch(context.Background(), sample())
	require.NoError(t, err)
	task := q.tasks[0]

	require.NoError(t, h(context.Background(), task))
	assert.Equal(t, 1, repo.Len())

	// a retried attempt after a successful insert
	require.NoError(t, h(context.Background(), task))
	assert.Equal(t, 1, repo.Len())

	assert.NoError(t, h(context.Background(), qport.Task{Type: SendMessageTaskType, Payload: []byte("{")}))

	repo.Fail(adapter.OpInsert, errors.New("down"))
	assert.Error(t, h(context.Background(), task), "transient failures are retried")
}
