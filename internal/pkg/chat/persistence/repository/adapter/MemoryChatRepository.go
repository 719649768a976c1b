package adapter

import (
	"context"
	"errors"
	"sync"
	"time"

	feedport "chatsync/internal/infrastructure/changefeed/port"
	chat "chatsync/internal/pkg/chat/application/domain"
	repository "chatsync/internal/pkg/chat/persistence/repository/port"

	"github.com/google/uuid"
)

// MemoryChatRepository keeps rows in memory and, when given a publisher,
// announces inserts and deletes on the conversation topic the way the
// Postgres trigger does. It records call counts so tests can assert on the
// number of backend requests.
type MemoryChatRepository struct {
	mu       sync.Mutex
	messages map[string]chat.Message // id -> row
	profiles map[string]chat.Profile // user id -> profile
	pub      feedport.Publisher
	now      func() time.Time

	// injected failures, keyed by operation name
	failures map[string]error

	calls map[string]int
}

// Operation names used by Calls and Fail.
const (
	OpSelect  = "select"
	OpInsert  = "insert"
	OpDelete  = "delete"
	OpProfile = "profile"
)

func NewMemoryChatRepository(pub feedport.Publisher) *MemoryChatRepository {
	return &MemoryChatRepository{
		messages: make(map[string]chat.Message),
		profiles: make(map[string]chat.Profile),
		pub:      pub,
		now:      time.Now,
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

var (
	_ repository.ChatRepository    = (*MemoryChatRepository)(nil)
	_ repository.ProfileRepository = (*MemoryChatRepository)(nil)
)

// Seed stores rows without publishing change events.
func (r *MemoryChatRepository) Seed(msgs ...chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.messages[m.ID] = m
	}
}

// PutProfile stores or replaces a profile.
func (r *MemoryChatRepository) PutProfile(p chat.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.UserID] = p
}

// Fail makes every subsequent call of op return err; a nil err clears it.
func (r *MemoryChatRepository) Fail(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, op)
		return
	}
	r.failures[op] = err
}

// Calls returns how many times op was invoked.
func (r *MemoryChatRepository) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// Len returns the number of stored rows.
func (r *MemoryChatRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *MemoryChatRepository) begin(ctx context.Context, op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.failures[op]
}

func (r *MemoryChatRepository) SelectMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if err := r.begin(ctx, OpSelect); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// map iteration order stands in for the store's lack of ordering
	var out []chat.Message
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *MemoryChatRepository) InsertMessage(ctx context.Context, m chat.Message) (*chat.Message, error) {
	if err := r.begin(ctx, OpInsert); err != nil {
		return nil, err
	}
	if m.ConversationID == "" || m.SenderID == "" {
		return nil, errors.New("MemoryChatRepository: chat_id and sender_id are required")
	}
	now := r.now().UTC()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.SentAt.IsZero() {
		m.SentAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}

	r.mu.Lock()
	if _, exists := r.messages[m.ID]; exists {
		r.mu.Unlock()
		return nil, repository.ErrDuplicate
	}
	r.messages[m.ID] = m
	r.mu.Unlock()

	r.publish(ctx, chat.InsertEvent(m))
	return &m, nil
}

func (r *MemoryChatRepository) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	if err := r.begin(ctx, OpDelete); err != nil {
		return err
	}
	r.mu.Lock()
	m, ok := r.messages[messageID]
	ok = ok && m.ConversationID == conversationID
	if ok {
		delete(r.messages, messageID)
	}
	r.mu.Unlock()

	if ok {
		r.publish(ctx, chat.DeleteEvent(chat.Message{ID: m.ID, ConversationID: m.ConversationID, SenderID: m.SenderID}))
	}
	return nil
}

func (r *MemoryChatRepository) FindProfile(ctx context.Context, userID string) (chat.Profile, bool, error) {
	if err := r.begin(ctx, OpProfile); err != nil {
		return chat.Profile{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	return p, ok, nil
}

func (r *MemoryChatRepository) publish(ctx context.Context, e chat.ChangeEvent) {
	if r.pub == nil {
		return
	}
	// publish failures are the feed's concern, the row change stands
	_ = r.pub.Publish(context.WithoutCancel(ctx), feedport.ConversationTopic(e.ConversationID()), e)
}
