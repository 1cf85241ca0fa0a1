package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session is one bounded-duration attendance window. The token is opaque
// and unique across all sessions ever created. Sessions are retained
// after close or expiry for history.
type Session struct {
	ID        uuid.UUID `json:"id"`
	TeacherID uuid.UUID `json:"teacher_id"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the session accepts scans at the given instant.
// Expiry is evaluated lazily here; there is no background sweep.
func (s Session) ValidAt(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}

var (
	ErrNotFound            = errors.New("session not found")
	ErrTokenRetryExhausted = errors.New("token generation retries exhausted")
)
