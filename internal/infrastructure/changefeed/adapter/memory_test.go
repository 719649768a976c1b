package adapter

import (
	"context"
	"testing"
	"time"

	"chatsync/internal/infrastructure/changefeed/port"
	chat "chatsync/internal/pkg/chat/application/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFeedDeliversMatchingEvents(t *testing.T) {
	feed := NewMemoryFeed()
	topic := port.ConversationTopic("c1")

	var got []chat.ChangeEvent
	sub, err := feed.Subscribe(context.Background(), topic, port.Filter{Events: []chat.EventType{chat.EventInsert}},
		func(e chat.ChangeEvent) { got = append(got, e) })
	require.NoError(t, err)
	assert.Equal(t, 1, feed.Subscribers(topic))

	ctx := context.Background()
	require.NoError(t, feed.Publish(ctx, topic, chat.InsertEvent(chat.Message{ID: "m1", ConversationID: "c1"})))
	require.NoError(t, feed.Publish(ctx, topic, chat.DeleteEvent(chat.Message{ID: "m1", ConversationID: "c1"})))
	require.NoError(t, feed.Publish(ctx, port.ConversationTopic("c2"), chat.InsertEvent(chat.Message{ID: "m2", ConversationID: "c2"})))

	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].RowID())

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
	assert.Equal(t, 0, feed.Subscribers(topic))
	require.NoError(t, feed.Publish(ctx, topic, chat.InsertEvent(chat.Message{ID: "m3", ConversationID: "c1"})))
	assert.Len(t, got, 1)
}

func TestMemoryFeedEndsSubscriptionWithContext(t *testing.T) {
	feed := NewMemoryFeed()
	topic := port.ConversationTopic("c1")
	ctx, cancel := context.WithCancel(context.Background())

	_, err := feed.Subscribe(ctx, topic, port.Filter{}, func(chat.ChangeEvent) {})
	require.NoError(t, err)
	cancel()
	assert.Eventually(t, func() bool { return feed.Subscribers(topic) == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryFeedClose(t *testing.T) {
	feed := NewMemoryFeed()
	_, err := feed.Subscribe(context.Background(), "t", port.Filter{}, nil)
	assert.Error(t, err)

	require.NoError(t, feed.Close())
	_, err = feed.Subscribe(context.Background(), "t", port.Filter{}, func(chat.ChangeEvent) {})
	assert.ErrorIs(t, err, port.ErrClosed)
	assert.ErrorIs(t, feed.Publish(context.Background(), "t", chat.ChangeEvent{}), port.ErrClosed)
}
