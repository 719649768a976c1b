package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	m, err := NewMessage("c1", "alice", "  hello \n", now)
	require.NoError(t, err)
	assert.Equal(t, "hello", m.Content)
	assert.Equal(t, now.UTC(), m.SentAt)
	assert.Equal(t, m.SentAt, m.UpdatedAt)
	_, err = uuid.Parse(m.ID)
	assert.NoError(t, err)

	other, err := NewMessage("c1", "alice", "hello", now)
	require.NoError(t, err)
	assert.NotEqual(t, m.ID, other.ID)
}

func TestNewMessageValidation(t *testing.T) {
	_, err := NewMessage("c1", "alice", " \t ", time.Now())
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = NewMessage("c1", "", "hi", time.Now())
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = NewMessage("", "alice", "hi", time.Now())
	assert.ErrorIs(t, err, ErrMissingConversation)

	assert.True(t, IsValidation(err))
	assert.False(t, IsValidation(assert.AnError))
}

func TestNewMessageContentLimitIsInBytes(t *testing.T) {
	_, err := NewMessage("c1", "alice", strings.Repeat("a", MaxContentBytes), time.Now())
	assert.NoError(t, err)

	// 342 three-byte runes are 1026 bytes
	_, err = NewMessage("c1", "alice", strings.Repeat("漢", 342), time.Now())
	assert.ErrorIs(t, err, ErrMessageTooLong)
	assert.True(t, IsValidation(err))

	_, err = NewMessage("c1", "alice", "  "+strings.Repeat("a", MaxContentBytes)+"\n", time.Now())
	assert.NoError(t, err, "surrounding whitespace is trimmed before the limit applies")
}

func TestSortNewestFirst(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "a", SentAt: t0},
		{ID: "c", SentAt: t0.Add(time.Minute)},
		{ID: "b", SentAt: t0},
	}
	SortNewestFirst(msgs)

	ids := []string{msgs[0].ID, msgs[1].ID, msgs[2].ID}
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestSenderIDs(t *testing.T) {
	msgs := []Message{{SenderID: "bob"}, {SenderID: "alice"}, {SenderID: "bob"}, {SenderID: ""}}
	assert.Equal(t, []string{"bob", "alice"}, SenderIDs(msgs))
	assert.Empty(t, SenderIDs(nil))
}

func TestChangeEventAccessors(t *testing.T) {
	ins := InsertEvent(Message{ConversationID: "c1", ID: "m1"})
	assert.Equal(t, MessagesTable, ins.Table)
	assert.Equal(t, "c1", ins.ConversationID())
	assert.Equal(t, "m1", ins.RowID())

	del := DeleteEvent(Message{ID: "m2"})
	assert.Equal(t, "", del.ConversationID())
	assert.Equal(t, "m2", del.RowID())

	assert.Equal(t, "", ChangeEvent{Type: EventInsert}.RowID())
}
