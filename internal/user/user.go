package user

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of account roles. Authorization decisions go
// through the capability predicates below, not string comparison.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// CanManageUsers reports whether the role may create and list accounts.
func (r Role) CanManageUsers() bool { return r == RoleAdmin }

// CanRunSessions reports whether the role may open and close attendance sessions.
func (r Role) CanRunSessions() bool { return r == RoleTeacher }

// CanMarkAttendance reports whether the role may submit scans.
func (r Role) CanMarkAttendance() bool { return r == RoleStudent }

// User is an account. Role is immutable once assigned.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

var (
	ErrNotFound           = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRole        = errors.New("invalid role")
)
