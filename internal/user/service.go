package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rollcall/internal/security"
)

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, u User) error
	GetByUsername(ctx context.Context, username string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	List(ctx context.Context) ([]User, error)
}

// Service manages accounts.
type Service struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// NewService creates a service backed by a store.
func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log, now: time.Now}
}

// Create registers a new account with the given role.
func (s *Service) Create(ctx context.Context, username, email, name, password string, role Role) (User, error) {
	if username == "" || email == "" || password == "" {
		return User{}, errors.New("username, email and password required")
	}
	if !role.Valid() {
		return User{}, ErrInvalidRole
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Insert(ctx, u); err != nil {
		return User{}, err
	}
	s.log.Info("user created", zap.String("username", username), zap.String("role", string(role)))
	return u, nil
}

// Authenticate verifies credentials and returns the account.
// Unknown users and bad passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := s.store.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	ok, err := security.CheckPassword(password, u.PasswordHash)
	if err != nil || !ok {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.store.GetByID(ctx, id)
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.store.List(ctx)
}

// EnsureAdmin seeds the default admin account when it does not exist yet.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) error {
	_, err := s.store.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	_, err = s.Create(ctx, username, email, "System Administrator", password, RoleAdmin)
	if errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrEmailTaken) {
		return nil
	}
	return err
}
