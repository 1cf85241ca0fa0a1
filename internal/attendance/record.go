package attendance

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Record is durable proof that a student scanned a session's token within
// its valid window. Immutable once created; at most one per
// (student, session) pair.
type Record struct {
	ID        uuid.UUID `json:"id"`
	StudentID uuid.UUID `json:"student_id"`
	SessionID uuid.UUID `json:"session_id"`
	ScannedAt time.Time `json:"scanned_at"`
	Payload   string    `json:"payload"`
}

var (
	ErrInvalidToken        = errors.New("invalid or unknown session token")
	ErrSessionExpired      = errors.New("session has expired")
	ErrDuplicateAttendance = errors.New("attendance already marked for this session")
)
