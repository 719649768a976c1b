package realtime

import (
	"encoding/json"

	chat "chatsync/internal/pkg/chat/application/domain"
)

// Frame types exchanged on the chat websocket.
const (
	FrameConnected = "connected"
	FrameJoin      = "join"
	FrameJoined    = "joined"
	FrameLeave     = "leave"
	FrameLeft      = "left"
	FrameChange    = "change"
	FrameMessage   = "message"
	FrameSent      = "sent"
	FrameError     = "error"
)

// ControlFrame is sent by clients (join/leave) and echoed back as acks.
type ControlFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// MessageFrame asks the gateway to insert a message on the sender's behalf.
// ID is optional and echoed back in the sent ack.
type MessageFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	ID             string `json:"id,omitempty"`
	Content        string `json:"content"`
}

// SentFrame acknowledges a MessageFrame; the row itself arrives as a change.
type SentFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	ID             string `json:"id"`
	Status         string `json:"status"`
}

// ErrorFrame reports a rejected client frame.
type ErrorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// ChangeFrame pushes one row change to the members of a conversation room.
type ChangeFrame struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversation_id"`
	Event          chat.ChangeEvent `json:"event"`
}

// Envelope is used to peek at the type of an incoming frame.
type Envelope struct {
	Type           string            `json:"type"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Code           string            `json:"code,omitempty"`
	Error          string            `json:"error,omitempty"`
	Event          *chat.ChangeEvent `json:"event,omitempty"`
}

// EncodeChange builds the payload broadcast to a room.
func EncodeChange(conversationID string, event chat.ChangeEvent) ([]byte, error) {
	return json.Marshal(ChangeFrame{Type: FrameChange, ConversationID: conversationID, Event: event})
}
