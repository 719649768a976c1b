package chat

// Profile is the subset of a user profile the chat needs: the avatar shown
// next to messages from other senders.
type Profile struct {
	UserID string `json:"user_id" db:"user_id"`
	Avatar string `json:"avatar" db:"avatar"`
}

// User is the signed-in user as reported by the session collaborator.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}
