package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const uniqueViolation = "23505"

// Insert writes a new record. The unique constraint on
// (student_id, session_id) makes concurrent double-scans lose the race;
// the violation surfaces as ErrDuplicateAttendance.
func (r *Repository) Insert(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, session_id, scanned_at, payload)
		VALUES ($1,$2,$3,$4,$5)
	`, rec.ID, rec.StudentID, rec.SessionID, rec.ScannedAt, rec.Payload)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateAttendance
	}
	return err
}

// Exists reports whether the student already has a record for the session.
func (r *Repository) Exists(ctx context.Context, studentID, sessionID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance_records
			WHERE student_id = $1 AND session_id = $2
		)
	`, studentID, sessionID).Scan(&exists)
	return exists, err
}

// Get returns a single record by id.
func (r *Repository) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	err := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, session_id, scanned_at, payload
		FROM attendance_records WHERE id = $1
	`, id).Scan(&rec.ID, &rec.StudentID, &rec.SessionID, &rec.ScannedAt, &rec.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, sql.ErrNoRows
	}
	return rec, err
}

// ListByStudent returns the student's records, newest first.
func (r *Repository) ListByStudent(ctx context.Context, studentID string) ([]Record, error) {
	return r.list(ctx, `
		SELECT id, student_id, session_id, scanned_at, payload
		FROM attendance_records WHERE student_id = $1
		ORDER BY scanned_at DESC
	`, studentID)
}

// ListBySession returns the session's records, oldest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	return r.list(ctx, `
		SELECT id, student_id, session_id, scanned_at, payload
		FROM attendance_records WHERE session_id = $1
		ORDER BY scanned_at
	`, sessionID)
}

func (r *Repository) list(ctx context.Context, query string, arg any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.SessionID, &rec.ScannedAt, &rec.Payload); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// Count returns the total number of records.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_records`).Scan(&n)
	return n, err
}

// CountSince returns the number of records scanned at or after t.
func (r *Repository) CountSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_records WHERE scanned_at >= $1
	`, t).Scan(&n)
	return n, err
}
