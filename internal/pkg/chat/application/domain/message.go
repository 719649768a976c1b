package chat

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxContentBytes bounds the trimmed content in bytes, matching the CHECK
// on chat_messages.content.
const MaxContentBytes = 1024

// Message is a single row of a conversation as mirrored by the client.
// Rows are immutable once created except for server-assigned timestamps.
type Message struct {
	ConversationID string    `json:"chat_id" db:"chat_id"`
	ID             string    `json:"id" db:"id"`
	SenderID       string    `json:"sender_id" db:"sender_id"`
	Content        string    `json:"content" db:"content"`
	SentAt         time.Time `json:"sent_at" db:"sent_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// NewMessage validates the draft and returns a message ready to insert.
// Content is trimmed; the ID is assigned client-side so that the echo of
// our own insert can be recognised on the change feed.
func NewMessage(conversationID, senderID, content string, now time.Time) (*Message, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, ErrMissingConversation
	}
	if strings.TrimSpace(senderID) == "" {
		return nil, ErrUnauthenticated
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, ErrEmptyMessage
	}
	if len(trimmed) > MaxContentBytes {
		return nil, ErrMessageTooLong
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Message{
		ConversationID: conversationID,
		ID:             uuid.NewString(),
		SenderID:       senderID,
		Content:        trimmed,
		SentAt:         now,
		UpdatedAt:      now,
	}, nil
}

// SortNewestFirst orders messages by SentAt descending. Equal timestamps
// fall back to ID so the order is deterministic whatever the store returns.
func SortNewestFirst(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].SentAt.Equal(msgs[j].SentAt) {
			return msgs[i].SentAt.After(msgs[j].SentAt)
		}
		return msgs[i].ID > msgs[j].ID
	})
}

// SenderIDs returns the distinct sender identifiers in first-seen order.
func SenderIDs(msgs []Message) []string {
	seen := make(map[string]struct{}, len(msgs))
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.SenderID == "" {
			continue
		}
		if _, ok := seen[m.SenderID]; ok {
			continue
		}
		seen[m.SenderID] = struct{}{}
		ids = append(ids, m.SenderID)
	}
	return ids
}
