package model

import "time"

// PendingSessionHash marks a session row whose refresh token has not been
// signed yet. It never matches a bcrypt hash.
const PendingSessionHash = "-"

type Session struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	RefreshTokenHash string    `json:"-"`
	IP               string    `json:"ip,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// ExpiredAt treats the expiry instant itself as expired.
func (s Session) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
