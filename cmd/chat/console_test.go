package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	feedAdapter "chatsync/internal/infrastructure/changefeed/adapter"
	chat "chatsync/internal/pkg/chat/application/domain"
	"chatsync/internal/pkg/chat/application/session"
	repoAdapter "chatsync/internal/pkg/chat/persistence/repository/adapter"
	"chatsync/internal/pkg/chat/presentation/view"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testConv = "4113f429-c4ad-42aa-b43f-0a2bcafaeaa5"
	testUser = "a11ce000-0000-4000-8000-000000000001"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestConsole(t *testing.T) (*console, *repoAdapter.MemoryChatRepository, *syncBuffer) {
	t.Helper()
	feed := feedAdapter.NewMemoryFeed()
	t.Cleanup(func() { _ = feed.Close() })
	repo := repoAdapter.NewMemoryChatRepository(feed)
	v := view.NewMessageSyncView(view.Deps{Repo: repo, Feed: feed, Session: session.NewStatic(testUser, "Alice")},
		view.Options{ConversationID: testConv, Logger: zerolog.Nop()})
	out := &syncBuffer{}
	return newConsole(v, view.Transcript{SelfID: testUser, Width: 60, Location: time.UTC}, out), repo, out
}

func TestConsoleSendsAndDeletes(t *testing.T) {
	c, repo, out := newTestConsole(t)
	repo.Seed(chat.Message{ConversationID: testConv, ID: "0badc0de-0000-4000-8000-000000000000", SenderID: testUser, Content: "old", SentAt: time.Now()})

	in := strings.NewReader("hello there\n/delete 0badc0de\n/bogus\n/quit\nnever sent\n")
	require.NoError(t, c.Run(context.Background(), in))

	assert.Equal(t, 1, repo.Calls(repoAdapter.OpInsert))
	assert.Equal(t, 1, repo.Calls(repoAdapter.OpDelete))
	assert.Equal(t, 1, repo.Len())
	assert.Contains(t, out.String(), "old")
	assert.Contains(t, out.String(), "unknown command /bogus")
}

func TestConsoleIgnoresBlankLinesAndStopsAtEOF(t *testing.T) {
	c, repo, out := newTestConsole(t)

	require.NoError(t, c.Run(context.Background(), strings.NewReader("\n   \n/delete\n/delete nothing\n")))

	assert.Equal(t, 0, repo.Calls(repoAdapter.OpInsert))
	assert.Equal(t, 0, repo.Calls(repoAdapter.OpDelete))
	assert.Contains(t, out.String(), "usage: /delete <id>")
	assert.Contains(t, out.String(), `no single message matches "nothing"`)
}

func TestParseDeletePolicy(t *testing.T) {
	p, err := parseDeletePolicy("Reload")
	require.NoError(t, err)
	assert.Equal(t, view.DeleteReload, p)

	p, err = parseDeletePolicy("")
	require.NoError(t, err)
	assert.Equal(t, view.DeleteViaChannel, p)

	_, err = parseDeletePolicy("never")
	assert.Error(t, err)
}
