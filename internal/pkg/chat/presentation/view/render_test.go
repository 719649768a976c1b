package view

import (
	"strings"
	"testing"
	"time"

	chat "chatsync/internal/pkg/chat/application/domain"

	"github.com/stretchr/testify/assert"
)

func TestTimeLabel(t *testing.T) {
	ts := time.Date(2024, 1, 2, 15, 4, 0, 0, time.UTC)
	assert.Equal(t, "Jan 2, 3:04 PM", TimeLabel(ts, time.UTC))
	assert.Equal(t, "", TimeLabel(time.Time{}, time.UTC))
}

func TestAvatarGlyph(t *testing.T) {
	assert.Equal(t, "(B)", AvatarGlyph("https://cdn.example.com/avatars/bob.png"))
	assert.Equal(t, "(·)", AvatarGlyph(""))
	assert.Equal(t, "(É)", AvatarGlyph("élise.jpg"))
}

func TestTranscriptRendersEveryMessage(t *testing.T) {
	msgs := []chat.Message{
		{ID: "11111111-aaaa", SenderID: alice, Content: "mine", SentAt: t0},
		{ID: "22222222-bbbb", SenderID: bob, Content: "theirs", SentAt: t0},
	}
	out := Transcript{SelfID: alice, Width: 60, Location: time.UTC}.Render(msgs, map[string]string{bob: "/b.png"})

	assert.Contains(t, out, "mine")
	assert.Contains(t, out, "theirs")
	assert.Contains(t, out, "(B)")
	assert.Contains(t, out, "11111111")
	assert.NotContains(t, out, "11111111-aaaa")
	assert.Equal(t, 2, strings.Count(out, "Mar 1, 12:00 PM"))
}
