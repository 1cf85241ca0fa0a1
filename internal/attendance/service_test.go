package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/qr"
	"rollcall/internal/session"
)

type pair struct{ student, session uuid.UUID }

// fakeStore is an in-memory Store enforcing the (student, session)
// uniqueness the way the DB constraint does.
type fakeStore struct {
	records []Record
	seen    map[pair]bool

	// staleExists makes Exists answer false regardless of contents,
	// simulating a read that raced with a concurrent insert.
	staleExists bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{seen: make(map[pair]bool)}
}

func (f *fakeStore) Insert(_ context.Context, rec Record) error {
	p := pair{rec.StudentID, rec.SessionID}
	if f.seen[p] {
		return ErrDuplicateAttendance
	}
	f.seen[p] = true
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStore) Exists(_ context.Context, studentID, sessionID uuid.UUID) (bool, error) {
	if f.staleExists {
		return false, nil
	}
	return f.seen[pair{studentID, sessionID}], nil
}

func (f *fakeStore) ListByStudent(_ context.Context, studentID string) ([]Record, error) {
	var res []Record
	for _, rec := range f.records {
		if rec.StudentID.String() == studentID {
			res = append(res, rec)
		}
	}
	return res, nil
}

func (f *fakeStore) ListBySession(_ context.Context, sessionID string) ([]Record, error) {
	var res []Record
	for _, rec := range f.records {
		if rec.SessionID.String() == sessionID {
			res = append(res, rec)
		}
	}
	return res, nil
}

func (f *fakeStore) Count(_ context.Context) (int, error) { return len(f.records), nil }

func (f *fakeStore) CountSince(_ context.Context, t time.Time) (int, error) {
	n := 0
	for _, rec := range f.records {
		if !rec.ScannedAt.Before(t) {
			n++
		}
	}
	return n, nil
}

type fakeDirectory struct {
	byToken map[string]session.Session
}

func (f *fakeDirectory) Lookup(_ context.Context, token string) (session.Session, error) {
	s, ok := f.byToken[token]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return s, nil
}

// fixture: one session, duration 60s starting at t0, and a recorder whose
// clock the test controls.
func newFixture(t *testing.T) (*Recorder, *fakeStore, session.Session, *time.Time) {
	t.Helper()
	t0 := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	sess := session.Session{
		ID:        uuid.New(),
		TeacherID: uuid.New(),
		Name:      "Algorithms 101",
		Token:     "a1b2c3d4e5f60718293a4b5c6d7e8f90",
		Active:    true,
		CreatedAt: t0,
		ExpiresAt: t0.Add(60 * time.Second),
	}
	store := newFakeStore()
	dir := &fakeDirectory{byToken: map[string]session.Session{sess.Token: sess}}
	rec := NewRecorder(store, dir, nil)
	clock := t0
	rec.now = func() time.Time { return clock }
	return rec, store, sess, &clock
}

func TestRecorder_MarkScenario(t *testing.T) {
	rec, store, sess, clock := newFixture(t)
	student := uuid.New()
	payload := qr.TokenPayload(sess.Token)
	ctx := context.Background()

	// t=30: valid scan creates a record
	*clock = sess.CreatedAt.Add(30 * time.Second)
	record, got, err := rec.Mark(ctx, student, payload)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, sess.ID, record.SessionID)
	assert.Equal(t, student, record.StudentID)
	assert.Equal(t, payload, record.Payload)
	assert.Len(t, store.records, 1)

	// t=90: past expiry
	*clock = sess.CreatedAt.Add(90 * time.Second)
	otherStudent := uuid.New()
	_, _, err = rec.Mark(ctx, otherStudent, payload)
	assert.ErrorIs(t, err, ErrSessionExpired)

	// back at t=30: same student again is a duplicate, still one record
	*clock = sess.CreatedAt.Add(30 * time.Second)
	_, _, err = rec.Mark(ctx, student, payload)
	assert.ErrorIs(t, err, ErrDuplicateAttendance)
	assert.Len(t, store.records, 1)
}

func TestRecorder_Mark_UnknownToken(t *testing.T) {
	rec, _, _, _ := newFixture(t)
	_, _, err := rec.Mark(context.Background(), uuid.New(), qr.TokenPayload("ffffffffffffffffffffffffffffffff"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRecorder_Mark_MalformedPayload(t *testing.T) {
	rec, _, sess, _ := newFixture(t)
	for _, payload := range []string{"", sess.Token, "STUDENT:alice:Alice"} {
		_, _, err := rec.Mark(context.Background(), uuid.New(), payload)
		assert.ErrorIs(t, err, ErrInvalidToken, "payload %q", payload)
	}
}

func TestRecorder_Mark_ClosedSession(t *testing.T) {
	rec, _, sess, clock := newFixture(t)

	closed := sess
	closed.Active = false
	rec.sessions.(*fakeDirectory).byToken[sess.Token] = closed

	*clock = sess.CreatedAt.Add(10 * time.Second)
	_, _, err := rec.Mark(context.Background(), uuid.New(), qr.TokenPayload(sess.Token))
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestRecorder_Mark_InsertRaceLosesToConstraint(t *testing.T) {
	rec, store, sess, clock := newFixture(t)
	student := uuid.New()
	*clock = sess.CreatedAt.Add(5 * time.Second)

	// A concurrent scan slipped in between the existence check and the
	// insert: the pair is already stored but Exists answers from a stale read.
	require.NoError(t, store.Insert(context.Background(), Record{
		ID: uuid.New(), StudentID: student, SessionID: sess.ID, ScannedAt: *clock,
	}))
	store.staleExists = true

	_, _, err := rec.Mark(context.Background(), student, qr.TokenPayload(sess.Token))
	assert.ErrorIs(t, err, ErrDuplicateAttendance)
	assert.Len(t, store.records, 1)
}

func TestRecorder_TwoStudentsSameSession(t *testing.T) {
	rec, store, sess, clock := newFixture(t)
	*clock = sess.CreatedAt.Add(10 * time.Second)
	ctx := context.Background()
	payload := qr.TokenPayload(sess.Token)

	_, _, err := rec.Mark(ctx, uuid.New(), payload)
	require.NoError(t, err)
	_, _, err = rec.Mark(ctx, uuid.New(), payload)
	require.NoError(t, err)
	assert.Len(t, store.records, 2)
}

func TestRecorder_Stats(t *testing.T) {
	rec, store, sess, clock := newFixture(t)
	ctx := context.Background()

	yesterday := sess.CreatedAt.Add(-24 * time.Hour)
	require.NoError(t, store.Insert(ctx, Record{
		ID: uuid.New(), StudentID: uuid.New(), SessionID: uuid.New(), ScannedAt: yesterday,
	}))

	*clock = sess.CreatedAt.Add(10 * time.Second)
	_, _, err := rec.Mark(ctx, uuid.New(), qr.TokenPayload(sess.Token))
	require.NoError(t, err)

	stats, err := rec.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRecords)
	assert.Equal(t, 1, stats.TodayRecords)
}
