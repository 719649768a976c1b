package view

import (
	"strings"
	"time"

	chat "chatsync/internal/pkg/chat/application/domain"

	"github.com/charmbracelet/lipgloss"
)

// TimeLabelLayout formats message timestamps, e.g. "Jan 2, 3:04 PM".
const TimeLabelLayout = "Jan 2, 3:04 PM"

var (
	metaColor   = lipgloss.Color("242")
	ownBg       = lipgloss.Color("241")
	otherBg     = lipgloss.Color("252")
	ownText     = lipgloss.Color("255")
	otherText   = lipgloss.Color("16")
	avatarColor = lipgloss.Color("67")
)

// Transcript renders messages the way the chat shows them: the signed-in
// user's messages right-aligned, everyone else's left-aligned behind their
// avatar. Bubbles take at most three quarters of width.
type Transcript struct {
	SelfID   string
	Width    int
	Location *time.Location
}

// Render lays out msgs in the given order, one bubble per message.
func (t Transcript) Render(msgs []chat.Message, avatars map[string]string) string {
	width := t.Width
	if width <= 0 {
		width = 80
	}
	bubbleWidth := width * 3 / 4
	loc := t.Location
	if loc == nil {
		loc = time.Local
	}

	meta := lipgloss.NewStyle().Foreground(metaColor).Faint(true)
	own := lipgloss.NewStyle().Background(ownBg).Foreground(ownText).Padding(0, 1).MaxWidth(bubbleWidth)
	other := lipgloss.NewStyle().Background(otherBg).Foreground(otherText).Padding(0, 1).MaxWidth(bubbleWidth)
	avatar := lipgloss.NewStyle().Foreground(avatarColor)

	blocks := make([]string, 0, len(msgs))
	for _, m := range msgs {
		label := meta.Render(TimeLabel(m.SentAt, loc) + "  " + shortID(m.ID))
		if m.SenderID == t.SelfID {
			body := lipgloss.JoinVertical(lipgloss.Right, label, own.Render(m.Content))
			blocks = append(blocks, lipgloss.PlaceHorizontal(width, lipgloss.Right, body))
			continue
		}
		icon := avatar.Render(AvatarGlyph(avatars[m.SenderID]))
		body := lipgloss.JoinVertical(lipgloss.Left, label, other.Render(m.Content))
		blocks = append(blocks, lipgloss.JoinHorizontal(lipgloss.Bottom, icon, " ", body))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}

// TimeLabel formats ts in loc; the zero time renders empty.
func TimeLabel(ts time.Time, loc *time.Location) string {
	if ts.IsZero() {
		return ""
	}
	if loc != nil {
		ts = ts.In(loc)
	}
	return ts.Format(TimeLabelLayout)
}

// AvatarGlyph stands in for the avatar image in a terminal: the first
// letter of the image file name, or a dot when the sender has none.
func AvatarGlyph(url string) string {
	name := url
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "(·)"
	}
	return "(" + strings.ToUpper(string([]rune(name)[:1])) + ")"
}

// shortID is enough of a message id to pass to /delete.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
