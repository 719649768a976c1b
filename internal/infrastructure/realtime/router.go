package realtime

import (
	"sync"

	chat "chatsync/internal/pkg/chat/application/domain"

	"github.com/rs/zerolog"
)

// CloseSessionReplaced is the close code sent to a socket displaced by a
// newer session of the same user.
const CloseSessionReplaced = 4001

// Router tracks attached connections and the conversation rooms they joined,
// and fans change frames out to rooms. A user has at most one attached
// connection; attaching another one closes the older.
type Router struct {
	mu     sync.RWMutex
	byUser map[string]*Connection
	rooms  map[string]map[*Connection]struct{} // conversationID -> members
	joined map[*Connection]map[string]struct{} // member -> conversationIDs

	log zerolog.Logger
}

func NewRouter(log zerolog.Logger) *Router {
	return &Router{
		byUser: make(map[string]*Connection),
		rooms:  make(map[string]map[*Connection]struct{}),
		joined: make(map[*Connection]map[string]struct{}),
		log:    log.With().Str("component", "realtime-router").Logger(),
	}
}

// Attach starts conn and makes it the user's connection.
func (r *Router) Attach(conn *Connection) {
	r.mu.Lock()
	previous := r.byUser[conn.UserID]
	if previous != nil {
		r.dropLocked(previous)
	}
	r.byUser[conn.UserID] = conn
	r.joined[conn] = make(map[string]struct{})
	r.mu.Unlock()

	conn.Start()

	if previous != nil {
		r.log.Debug().Str("user_id", conn.UserID).Msg("session replaced")
		previous.Close(CloseSessionReplaced, "session replaced")
	}
}

// Detach forgets conn and its room memberships.
func (r *Router) Detach(conn *Connection) {
	r.mu.Lock()
	r.dropLocked(conn)
	r.mu.Unlock()
}

// Join adds conn to the room of conversationID. It reports false when conn
// is not attached, e.g. because a newer session replaced it.
func (r *Router) Join(conversationID string, conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms, ok := r.joined[conn]
	if !ok {
		return false
	}
	members := r.rooms[conversationID]
	if members == nil {
		members = make(map[*Connection]struct{})
		r.rooms[conversationID] = members
	}
	members[conn] = struct{}{}
	rooms[conversationID] = struct{}{}
	return true
}

// Leave removes conn from the room of conversationID.
func (r *Router) Leave(conversationID string, conn *Connection) {
	r.mu.Lock()
	r.leaveLocked(conversationID, conn)
	r.mu.Unlock()
}

// Members returns the number of connections in the room.
func (r *Router) Members(conversationID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[conversationID])
}

// Broadcast queues payload on every member of the room and returns how many
// accepted it.
func (r *Router) Broadcast(conversationID string, payload []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	delivered := 0
	for conn := range r.rooms[conversationID] {
		if conn.Send(payload) == nil {
			delivered++
		}
	}
	return delivered
}

// Dispatch pushes a row change to the room of the row's conversation. The
// author is a member like any other and receives the echo of its insert.
// Events that do not name their conversation cannot be routed.
func (r *Router) Dispatch(event chat.ChangeEvent) int {
	conv := event.ConversationID()
	if conv == "" {
		r.log.Warn().Str("type", string(event.Type)).Str("row_id", event.RowID()).Msg("dropping change without conversation")
		return 0
	}
	payload, err := EncodeChange(conv, event)
	if err != nil {
		r.log.Error().Err(err).Msg("encode change frame")
		return 0
	}
	n := r.Broadcast(conv, payload)
	r.log.Debug().Str("conversation_id", conv).Str("type", string(event.Type)).Int("delivered", n).Msg("change dispatched")
	return n
}

// Close closes every attached connection and forgets all rooms.
func (r *Router) Close() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.joined))
	for conn := range r.joined {
		conns = append(conns, conn)
	}
	r.byUser = make(map[string]*Connection)
	r.rooms = make(map[string]map[*Connection]struct{})
	r.joined = make(map[*Connection]map[string]struct{})
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close(1001, "router shutdown")
	}
}

func (r *Router) dropLocked(conn *Connection) {
	rooms, ok := r.joined[conn]
	if !ok {
		return
	}
	for conv := range rooms {
		r.leaveLocked(conv, conn)
	}
	delete(r.joined, conn)
	if r.byUser[conn.UserID] == conn {
		delete(r.byUser, conn.UserID)
	}
}

func (r *Router) leaveLocked(conversationID string, conn *Connection) {
	if members := r.rooms[conversationID]; members != nil {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.rooms, conversationID)
		}
	}
	if rooms := r.joined[conn]; rooms != nil {
		delete(rooms, conversationID)
	}
}
