package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rollcall/internal/metrics"
)

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, s Session) error
	GetByToken(ctx context.Context, token string) (Session, error)
	GetByID(ctx context.Context, id string) (Session, error)
	TokenExists(ctx context.Context, token string) (bool, error)
	SetActive(ctx context.Context, id string, active bool) error
	ListByTeacher(ctx context.Context, teacherID string) ([]Session, error)
}

// Service owns the session lifecycle: token issuance, creation, lookup
// and closing. Validity is checked lazily via Session.ValidAt.
type Service struct {
	store           Store
	issuer          *Issuer
	defaultDuration time.Duration
	log             *zap.Logger
	now             func() time.Time
}

// NewService creates a service backed by a store.
func NewService(store Store, maxTokenRetries int, defaultDuration time.Duration, log *zap.Logger) *Service {
	if defaultDuration <= 0 {
		defaultDuration = time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:           store,
		issuer:          NewIssuer(store.TokenExists, maxTokenRetries),
		defaultDuration: defaultDuration,
		log:             log,
		now:             time.Now,
	}
}

// Create opens a new session for the teacher. Zero duration falls back to
// the configured default.
func (s *Service) Create(ctx context.Context, teacherID uuid.UUID, name string, duration time.Duration) (Session, error) {
	if name == "" {
		return Session{}, errors.New("session name required")
	}
	if duration <= 0 {
		duration = s.defaultDuration
	}

	token, err := s.issuer.Issue(ctx)
	if err != nil {
		return Session{}, err
	}

	now := s.now().UTC()
	sess := Session{
		ID:        uuid.New(),
		TeacherID: teacherID,
		Name:      name,
		Token:     token,
		Active:    true,
		CreatedAt: now,
		ExpiresAt: now.Add(duration),
	}
	if err := s.store.Insert(ctx, sess); err != nil {
		return Session{}, err
	}

	metrics.SessionsCreated.Inc()
	s.log.Info("session created",
		zap.String("session_id", sess.ID.String()),
		zap.String("name", name),
		zap.Time("expires_at", sess.ExpiresAt))
	return sess, nil
}

// Lookup resolves a token to its session. ErrNotFound for unknown tokens.
func (s *Service) Lookup(ctx context.Context, token string) (Session, error) {
	return s.store.GetByToken(ctx, token)
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	return s.store.GetByID(ctx, id)
}

// Close deactivates the session. Idempotent; the row is retained.
func (s *Service) Close(ctx context.Context, id string) error {
	return s.store.SetActive(ctx, id, false)
}

// ListByTeacher returns the teacher's sessions, newest first.
func (s *Service) ListByTeacher(ctx context.Context, teacherID string) ([]Session, error) {
	return s.store.ListByTeacher(ctx, teacherID)
}
