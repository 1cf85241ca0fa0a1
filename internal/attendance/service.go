package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rollcall/internal/metrics"
	"rollcall/internal/qr"
	"rollcall/internal/session"
)

// SessionDirectory resolves scanned tokens to sessions.
type SessionDirectory interface {
	Lookup(ctx context.Context, token string) (session.Session, error)
}

// Store is the persistence surface the recorder needs.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	Exists(ctx context.Context, studentID, sessionID uuid.UUID) (bool, error)
	ListByStudent(ctx context.Context, studentID string) ([]Record, error)
	ListBySession(ctx context.Context, sessionID string) ([]Record, error)
	Count(ctx context.Context) (int, error)
	CountSince(ctx context.Context, t time.Time) (int, error)
}

// Recorder validates scans against the session store and appends
// attendance records, at most one per (student, session).
type Recorder struct {
	store    Store
	sessions SessionDirectory
	log      *zap.Logger
	now      func() time.Time
}

// NewRecorder creates a recorder.
func NewRecorder(store Store, sessions SessionDirectory, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, sessions: sessions, log: log, now: time.Now}
}

// Mark validates the scanned payload and records attendance.
// Failure modes, in order: ErrInvalidToken (malformed payload or unknown
// token), ErrSessionExpired (closed or past expiry), ErrDuplicateAttendance
// (already marked). The pre-insert existence check gives a clean error on
// the common path; the DB unique constraint settles races.
func (r *Recorder) Mark(ctx context.Context, studentID uuid.UUID, payload string) (Record, session.Session, error) {
	token, err := qr.ParseToken(payload)
	if err != nil {
		metrics.Scans.WithLabelValues("invalid_token").Inc()
		return Record{}, session.Session{}, ErrInvalidToken
	}

	sess, err := r.sessions.Lookup(ctx, token)
	if errors.Is(err, session.ErrNotFound) {
		metrics.Scans.WithLabelValues("invalid_token").Inc()
		return Record{}, session.Session{}, ErrInvalidToken
	}
	if err != nil {
		metrics.Scans.WithLabelValues("error").Inc()
		return Record{}, session.Session{}, err
	}

	if !sess.ValidAt(r.now()) {
		metrics.Scans.WithLabelValues("expired").Inc()
		return Record{}, sess, ErrSessionExpired
	}

	exists, err := r.store.Exists(ctx, studentID, sess.ID)
	if err != nil {
		metrics.Scans.WithLabelValues("error").Inc()
		return Record{}, sess, err
	}
	if exists {
		metrics.Scans.WithLabelValues("duplicate").Inc()
		return Record{}, sess, ErrDuplicateAttendance
	}

	rec := Record{
		ID:        uuid.New(),
		StudentID: studentID,
		SessionID: sess.ID,
		ScannedAt: r.now().UTC(),
		Payload:   payload,
	}
	if err := r.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateAttendance) {
			metrics.Scans.WithLabelValues("duplicate").Inc()
		} else {
			metrics.Scans.WithLabelValues("error").Inc()
		}
		return Record{}, sess, err
	}

	metrics.Scans.WithLabelValues("marked").Inc()
	r.log.Info("attendance marked",
		zap.String("student_id", studentID.String()),
		zap.String("session_id", sess.ID.String()))
	return rec, sess, nil
}

// ListByStudent returns the student's attendance history.
func (r *Recorder) ListByStudent(ctx context.Context, studentID string) ([]Record, error) {
	return r.store.ListByStudent(ctx, studentID)
}

// ListBySession returns all records for a session.
func (r *Recorder) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	return r.store.ListBySession(ctx, sessionID)
}

// Stats summarizes record counts for the admin dashboard.
type Stats struct {
	TotalRecords int `json:"total_records"`
	TodayRecords int `json:"today_records"`
}

// Stats returns total and today's record counts.
func (r *Recorder) Stats(ctx context.Context) (Stats, error) {
	total, err := r.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	midnight := r.now().UTC().Truncate(24 * time.Hour)
	today, err := r.store.CountSince(ctx, midnight)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalRecords: total, TodayRecords: today}, nil
}
