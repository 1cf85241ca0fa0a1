package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store for unit tests.
type fakeStore struct {
	byToken map[string]Session
	byID    map[string]Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{byToken: make(map[string]Session), byID: make(map[string]Session)}
}

func (f *fakeStore) Insert(_ context.Context, s Session) error {
	f.byToken[s.Token] = s
	f.byID[s.ID.String()] = s
	return nil
}

func (f *fakeStore) GetByToken(_ context.Context, token string) (Session, error) {
	s, ok := f.byToken[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (Session, error) {
	s, ok := f.byID[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) TokenExists(_ context.Context, token string) (bool, error) {
	_, ok := f.byToken[token]
	return ok, nil
}

func (f *fakeStore) SetActive(_ context.Context, id string, active bool) error {
	s, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	s.Active = active
	f.byID[id] = s
	f.byToken[s.Token] = s
	return nil
}

func (f *fakeStore) ListByTeacher(_ context.Context, teacherID string) ([]Session, error) {
	var res []Session
	for _, s := range f.byID {
		if s.TeacherID.String() == teacherID {
			res = append(res, s)
		}
	}
	return res, nil
}

func newTestService(store *fakeStore, at time.Time) *Service {
	svc := NewService(store, 5, time.Hour, nil)
	svc.now = func() time.Time { return at }
	return svc
}

func TestService_Create(t *testing.T) {
	t0 := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	svc := newTestService(newFakeStore(), t0)
	teacher := uuid.New()

	sess, err := svc.Create(context.Background(), teacher, "Algorithms 101", 60*time.Second)
	require.NoError(t, err)
	assert.True(t, sess.Active)
	assert.Equal(t, teacher, sess.TeacherID)
	assert.Equal(t, t0, sess.CreatedAt)
	assert.Equal(t, t0.Add(60*time.Second), sess.ExpiresAt)
	assert.Len(t, sess.Token, 2*tokenBytes)

	got, err := svc.Lookup(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestService_Create_NoTwoSessionsShareAToken(t *testing.T) {
	svc := newTestService(newFakeStore(), time.Now())
	teacher := uuid.New()
	tokens := make(map[string]bool)

	for i := 0; i < 100; i++ {
		sess, err := svc.Create(context.Background(), teacher, "repeat", time.Minute)
		require.NoError(t, err)
		assert.False(t, tokens[sess.Token])
		tokens[sess.Token] = true
	}
}

func TestService_Create_DefaultDuration(t *testing.T) {
	t0 := time.Now().UTC()
	svc := newTestService(newFakeStore(), t0)

	sess, err := svc.Create(context.Background(), uuid.New(), "no duration given", 0)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), sess.ExpiresAt)
}

func TestService_Create_RequiresName(t *testing.T) {
	svc := newTestService(newFakeStore(), time.Now())
	_, err := svc.Create(context.Background(), uuid.New(), "", time.Minute)
	assert.Error(t, err)
}

func TestService_Lookup_UnknownToken(t *testing.T) {
	svc := newTestService(newFakeStore(), time.Now())
	_, err := svc.Lookup(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSession_ValidAt_LazyExpiry(t *testing.T) {
	t0 := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	sess := Session{Active: true, ExpiresAt: t0.Add(60 * time.Second)}

	assert.True(t, sess.ValidAt(t0.Add(30*time.Second)))
	assert.False(t, sess.ValidAt(t0.Add(60*time.Second)), "boundary instant counts as expired")
	assert.False(t, sess.ValidAt(t0.Add(90*time.Second)))

	sess.Active = false
	assert.False(t, sess.ValidAt(t0.Add(30*time.Second)), "closed session fails validation before expiry")
}

func TestService_Close_Idempotent(t *testing.T) {
	t0 := time.Now().UTC()
	store := newFakeStore()
	svc := newTestService(store, t0)

	sess, err := svc.Create(context.Background(), uuid.New(), "to close", time.Hour)
	require.NoError(t, err)

	require.NoError(t, svc.Close(context.Background(), sess.ID.String()))
	require.NoError(t, svc.Close(context.Background(), sess.ID.String()))

	got, err := svc.Get(context.Background(), sess.ID.String())
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.False(t, got.ValidAt(t0))
}
