package session

import (
	"sync"

	chat "chatsync/internal/pkg/chat/application/domain"
)

// Provider reports the signed-in user, or nil when nobody is signed in.
type Provider interface {
	CurrentUser() *chat.User
}

// Static is a Provider whose user is set by the caller.
type Static struct {
	mu   sync.RWMutex
	user *chat.User
}

// NewStatic returns a provider for user; an empty id means signed out.
func NewStatic(id, displayName string) *Static {
	s := &Static{}
	if id != "" {
		s.user = &chat.User{ID: id, DisplayName: displayName}
	}
	return s
}

var _ Provider = (*Static)(nil)

func (s *Static) CurrentUser() *chat.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// SignIn replaces the current user.
func (s *Static) SignIn(u chat.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
}

// SignOut clears the current user.
func (s *Static) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
}
