package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	qport "chatsync/internal/infrastructure/queue/port"
	chat "chatsync/internal/pkg/chat/application/domain"
	"chatsync/internal/pkg/chat/application/usecase"
	repository "chatsync/internal/pkg/chat/persistence/repository/port"

	"github.com/rs/zerolog"
)

// SendMessageTaskType is the queue task name for inserting a chat message.
const SendMessageTaskType = "chat:send_message"

// SendMessageQueue is the logical queue the task is enqueued on.
const SendMessageQueue = "chat"

// SendMessageTaskPayload is the JSON payload transported via the queue.
// Kept decoupled from domain types so the wire shape stays stable.
type SendMessageTaskPayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"chat_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sent_at"`
}

func payloadFromMessage(m chat.Message) SendMessageTaskPayload {
	return SendMessageTaskPayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		SentAt:         m.SentAt,
	}
}

func (p SendMessageTaskPayload) message() chat.Message {
	return chat.Message{
		ID:             p.ID,
		ConversationID: p.ConversationID,
		SenderID:       p.SenderID,
		Content:        p.Content,
		SentAt:         p.SentAt,
		UpdatedAt:      p.SentAt,
	}
}

// QueueDispatcher hands validated messages to a worker instead of inserting
// them directly. The message id doubles as the task id so a message is
// queued at most once while the task is retained.
type QueueDispatcher struct {
	Q         qport.Client
	MaxRetry  int
	Retention time.Duration
}

func NewQueueDispatcher(q qport.Client) *QueueDispatcher {
	return &QueueDispatcher{Q: q, MaxRetry: 10, Retention: time.Hour}
}

var _ usecase.Dispatcher = (*QueueDispatcher)(nil)

// Dispatch returns the message as queued; the row appears once the worker
// has inserted it and the change feed announces it.
func (d *QueueDispatcher) Dispatch(ctx context.Context, m chat.Message) (*chat.Message, error) {
	b, err := json.Marshal(payloadFromMessage(m))
	if err != nil {
		return nil, err
	}
	_, err = d.Q.Enqueue(ctx, qport.Task{Type: SendMessageTaskType, Payload: b}, qport.EnqueueOption{
		Queue:     SendMessageQueue,
		MaxRetry:  d.MaxRetry,
		TaskID:    m.ID,
		Retention: d.Retention,
	})
	if errors.Is(err, qport.ErrDuplicateTask) {
		// resubmitted by the client; the first task owns the insert
		return &m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", SendMessageTaskType, err)
	}
	return &m, nil
}

// RegisterSendMessageTask binds the task handler to the provided server.
// The handler runs the SendMessageUseCase against repo directly.
func RegisterSendMessageTask(srv qport.Server, repo repository.ChatRepository, log zerolog.Logger) {
	uc := usecase.NewSendMessageUseCase(usecase.NewDirectDispatcher(repo))
	srv.Register(SendMessageTaskType, func(ctx context.Context, t qport.Task) error {
		var p SendMessageTaskPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			// malformed payload: do not retry indefinitely
			log.Error().Err(err).Str("task", t.Type).Msg("dropping malformed payload")
			return nil
		}

		// give DB a reasonable time budget per task execution
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		_, err := uc.Deliver(ctx, p.message())
		if errors.Is(err, repository.ErrDuplicate) {
			// an earlier attempt already inserted the row
			log.Debug().Str("message_id", p.ID).Msg("message already stored")
			return nil
		}
		// the retry/backoff policy is controlled by the adapter/server
		return err
	})
}
