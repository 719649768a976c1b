package port

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	chat "chatsync/internal/pkg/chat/application/domain"
)

// Handler receives change events. It may be called from any goroutine but
// never concurrently for the same subscription.
type Handler func(event chat.ChangeEvent)

// Filter narrows a subscription to one table, a set of event types and
// optionally one conversation. Zero fields match everything.
type Filter struct {
	Table          string
	Events         []chat.EventType
	ConversationID string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e chat.ChangeEvent) bool {
	if f.Table != "" && e.Table != f.Table {
		return false
	}
	if len(f.Events) > 0 {
		ok := false
		for _, t := range f.Events {
			if t == e.Type {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	// DELETE payloads may only carry the id; let them through and leave the
	// final say to the consumer, which knows which ids it holds.
	if f.ConversationID != "" {
		if conv := e.ConversationID(); conv != "" && conv != f.ConversationID {
			return false
		}
	}
	return true
}

// Subscription is the handle returned by Subscribe.
// Unsubscribe is idempotent and returns once no delivery is in progress, so
// it must not be called from inside the subscription's own handler.
type Subscription interface {
	Unsubscribe() error
}

// Feed is the push half of the backend contract.
// A subscription lasts until Unsubscribe is called or ctx is cancelled.
type Feed interface {
	Subscribe(ctx context.Context, topic string, filter Filter, h Handler) (Subscription, error)
}

// Publisher pushes change events onto a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event chat.ChangeEvent) error
}

// ErrClosed is returned when subscribing to or publishing on a closed feed.
var ErrClosed = errors.New("changefeed: closed")

const topicPrefix = chat.MessagesTable + ":"

// ConversationTopic is the topic carrying changes of one conversation.
func ConversationTopic(conversationID string) string {
	return topicPrefix + conversationID
}

// AllConversationsTopic is a pattern topic matching every conversation on
// feeds that support patterns (Redis).
const AllConversationsTopic = topicPrefix + "*"

// ConversationFromTopic is the inverse of ConversationTopic.
func ConversationFromTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, topicPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(topic, topicPrefix)
	return id, id != ""
}

// Encode serialises an event for the wire.
func Encode(e chat.ChangeEvent) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a wire payload and rejects events without a usable row id.
func Decode(payload []byte) (chat.ChangeEvent, error) {
	var e chat.ChangeEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return chat.ChangeEvent{}, fmt.Errorf("changefeed: decode: %w", err)
	}
	e.Type = chat.EventType(strings.ToUpper(string(e.Type)))
	if e.Type != chat.EventInsert && e.Type != chat.EventDelete {
		return chat.ChangeEvent{}, fmt.Errorf("changefeed: unsupported event type %q", e.Type)
	}
	if e.RowID() == "" {
		return chat.ChangeEvent{}, fmt.Errorf("changefeed: %s event without row id", e.Type)
	}
	return e, nil
}
