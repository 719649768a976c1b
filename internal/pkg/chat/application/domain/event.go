package chat

// Table names of the backing store.
const (
	MessagesTable = "chat_messages"
	ProfilesTable = "profiles"
)

// EventType is the kind of row change pushed by the change feed.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventDelete EventType = "DELETE"
)

// ChangeEvent mirrors a postgres-changes payload: New is set for inserts,
// Old for deletes (at least Old.ID).
type ChangeEvent struct {
	Type  EventType `json:"type"`
	Table string    `json:"table"`
	New   *Message  `json:"new,omitempty"`
	Old   *Message  `json:"old,omitempty"`
}

// ConversationID returns the conversation the changed row belongs to, or ""
// when the payload does not carry it.
func (e ChangeEvent) ConversationID() string {
	switch {
	case e.New != nil && e.New.ConversationID != "":
		return e.New.ConversationID
	case e.Old != nil:
		return e.Old.ConversationID
	}
	return ""
}

// RowID returns the identifier of the changed row.
func (e ChangeEvent) RowID() string {
	switch e.Type {
	case EventInsert:
		if e.New != nil {
			return e.New.ID
		}
	case EventDelete:
		if e.Old != nil {
			return e.Old.ID
		}
	}
	return ""
}

// InsertEvent builds the INSERT event for m.
func InsertEvent(m Message) ChangeEvent {
	return ChangeEvent{Type: EventInsert, Table: MessagesTable, New: &m}
}

// DeleteEvent builds the DELETE event for m.
func DeleteEvent(m Message) ChangeEvent {
	return ChangeEvent{Type: EventDelete, Table: MessagesTable, Old: &m}
}
