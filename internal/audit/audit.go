package audit

import (
	"context"
	"database/sql"
)

// Entry is one audit log row. Attendance events reference the record,
// session and student they came from.
type Entry struct {
	Event     string
	RecordID  string
	SessionID string
	StudentID string
	Detail    string
}

// Repository appends audit entries in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Append writes one entry.
func (r *Repository) Append(ctx context.Context, e Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (event, record_id, session_id, student_id, detail)
		VALUES ($1, NULLIF($2, '')::uuid, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, NULLIF($5, ''))
	`, e.Event, e.RecordID, e.SessionID, e.StudentID, e.Detail)
	return err
}
