package port

import (
	"testing"

	chat "chatsync/internal/pkg/chat/application/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMatch(t *testing.T) {
	ins := chat.InsertEvent(chat.Message{ConversationID: "c1", ID: "m1"})
	del := chat.DeleteEvent(chat.Message{ID: "m2"})
	profiles := chat.ChangeEvent{Type: chat.EventInsert, Table: chat.ProfilesTable, New: &chat.Message{ID: "p"}}

	assert.True(t, Filter{}.Match(profiles))

	f := Filter{Table: chat.MessagesTable, Events: []chat.EventType{chat.EventInsert, chat.EventDelete}, ConversationID: "c1"}
	assert.True(t, f.Match(ins))
	assert.True(t, f.Match(del), "delete without conversation passes")
	assert.False(t, f.Match(profiles))

	other := chat.InsertEvent(chat.Message{ConversationID: "c2", ID: "m3"})
	assert.False(t, f.Match(other))

	insertsOnly := Filter{Events: []chat.EventType{chat.EventInsert}}
	assert.False(t, insertsOnly.Match(del))
}

func TestConversationTopic(t *testing.T) {
	topic := ConversationTopic("c1")
	assert.Equal(t, "chat_messages:c1", topic)

	id, ok := ConversationFromTopic(topic)
	assert.True(t, ok)
	assert.Equal(t, "c1", id)

	_, ok = ConversationFromTopic("chat_messages:")
	assert.False(t, ok)
	_, ok = ConversationFromTopic("profiles:c1")
	assert.False(t, ok)
}

func TestDecode(t *testing.T) {
	e, err := Decode([]byte(`{"type":"insert","table":"chat_messages","new":{"id":"m1","chat_id":"c1","sender_id":"a","content":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, chat.EventInsert, e.Type)
	assert.Equal(t, "c1", e.ConversationID())

	b, err := Encode(chat.DeleteEvent(chat.Message{ID: "m2", ConversationID: "c1"}))
	require.NoError(t, err)
	e, err = Decode(b)
	require.NoError(t, err)
	assert.Equal(t, "m2", e.RowID())

	for _, bad := range []string{
		`not json`,
		`{"type":"UPDATE","table":"chat_messages","new":{"id":"m1"}}`,
		`{"type":"DELETE","table":"chat_messages","old":{}}`,
	} {
		_, err := Decode([]byte(bad))
		assert.Error(t, err, bad)
	}
}
