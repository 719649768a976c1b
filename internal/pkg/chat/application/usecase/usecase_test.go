package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	chat "chatsync/internal/pkg/chat/application/domain"
	"chatsync/internal/pkg/chat/persistence/repository/adapter"
	repository "chatsync/internal/pkg/chat/persistence/repository/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestLoadMessagesSortsNewestFirst(t *testing.T) {
	repo := adapter.NewMemoryChatRepository(nil)
	repo.Seed(
		chat.Message{ConversationID: "c1", ID: "m1", SenderID: "a", SentAt: t0},
		chat.Message{ConversationID: "c1", ID: "m2", SenderID: "b", SentAt: t0.Add(time.Second)},
		chat.Message{ConversationID: "c2", ID: "m3", SenderID: "a", SentAt: t0},
	)
	uc := NewLoadMessagesUseCase(repo)

	msgs, err := uc.Execute(context.Background(), LoadMessagesInput{ConversationID: "c1"})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].ID)

	_, err = uc.Execute(context.Background(), LoadMessagesInput{})
	assert.ErrorIs(t, err, chat.ErrMissingConversation)

	repo.Fail(adapter.OpSelect, errors.New("down"))
	_, err = uc.Execute(context.Background(), LoadMessagesInput{ConversationID: "c1"})
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestSendMessageInsertsOnce(t *testing.T) {
	repo := adapter.NewMemoryChatRepository(nil)
	uc := NewSendMessageUseCase(NewDirectDispatcher(repo))
	uc.Now = func() time.Time { return t0 }

	out, err := uc.Execute(context.Background(), SendMessageInput{ConversationID: "c1", SenderID: "a", Content: " hi "})
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Content)
	assert.Equal(t, t0, out.SentAt)
	assert.Equal(t, 1, repo.Calls(adapter.OpInsert))

	_, err = uc.Execute(context.Background(), SendMessageInput{ConversationID: "c1", SenderID: "a", Content: ""})
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
	assert.Equal(t, 1, repo.Calls(adapter.OpInsert))

	_, err = uc.Deliver(context.Background(), *out)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestDeleteMessage(t *testing.T) {
	repo := adapter.NewMemoryChatRepository(nil)
	repo.Seed(chat.Message{ConversationID: "c1", ID: "m1", SenderID: "a"})
	uc := NewDeleteMessageUseCase(repo)

	assert.ErrorIs(t, uc.Execute(context.Background(), DeleteMessageInput{ConversationID: "c1", MessageID: " "}), chat.ErrMissingMessageID)
	assert.ErrorIs(t, uc.Execute(context.Background(), DeleteMessageInput{MessageID: "m1"}), chat.ErrMissingConversation)

	require.NoError(t, uc.Execute(context.Background(), DeleteMessageInput{ConversationID: "c2", MessageID: "m1"}))
	assert.Equal(t, 1, repo.Len(), "a row of another conversation is left alone")

	require.NoError(t, uc.Execute(context.Background(), DeleteMessageInput{ConversationID: "c1", MessageID: "m1"}))
	assert.Equal(t, 0, repo.Len())

	repo.Fail(adapter.OpDelete, errors.New("denied"))
	assert.ErrorIs(t, uc.Execute(context.Background(), DeleteMessageInput{ConversationID: "c1", MessageID: "m1"}), ErrPersistence)
}

type flakyProfiles struct {
	avatars map[string]string
	failing map[string]bool
	calls   map[string]int
}

func (f *flakyProfiles) FindProfile(_ context.Context, userID string) (chat.Profile, bool, error) {
	f.calls[userID]++
	if f.failing[userID] {
		return chat.Profile{}, false, errors.New("timeout")
	}
	a, ok := f.avatars[userID]
	return chat.Profile{UserID: userID, Avatar: a}, ok, nil
}

func TestResolveAvatars(t *testing.T) {
	p := &flakyProfiles{
		avatars: map[string]string{"a": "/a.png", "b": "/b.png"},
		failing: map[string]bool{"c": true},
		calls:   map[string]int{},
	}
	uc := NewResolveAvatarsUseCase(p)

	out, err := uc.Execute(context.Background(), ResolveAvatarsInput{SenderIDs: []string{"a", "b", "a", "", "c", "ghost"}})
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, map[string]string{"a": "/a.png", "b": "/b.png"}, out)
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1, "ghost": 1}, p.calls)
}
