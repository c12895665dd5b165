package types

import "time"

// Session is a stored conversation: ordered messages belonging to one user.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Messages  []*Message `json:"messages"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Clone returns a deep-enough copy: the message slice is copied so callers
// can append without aliasing the stored session.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Messages = make([]*Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return &cp
}
