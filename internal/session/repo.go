package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenCachePrefix = "session:token:"

// Repository persists sessions in Postgres with an optional Redis
// read-through cache for token lookups. Postgres stays authoritative;
// cache misses and cache errors fall back to the database.
type Repository struct {
	db    *sql.DB
	cache *redis.Client
}

// NewRepository creates a repo. cache may be nil.
func NewRepository(db *sql.DB, cache *redis.Client) *Repository {
	return &Repository{db: db, cache: cache}
}

// Insert stores a new session and primes the token cache.
func (r *Repository) Insert(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, teacher_id, name, token, active, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, s.ID, s.TeacherID, s.Name, s.Token, s.Active, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return err
	}
	if r.cache != nil {
		ttl := time.Until(s.ExpiresAt)
		if ttl > 0 {
			_ = r.cache.Set(ctx, tokenCachePrefix+s.Token, s.ID.String(), ttl).Err()
		}
	}
	return nil
}

// GetByToken returns the session owning token, or ErrNotFound.
func (r *Repository) GetByToken(ctx context.Context, token string) (Session, error) {
	if r.cache != nil {
		if id, err := r.cache.Get(ctx, tokenCachePrefix+token).Result(); err == nil {
			if s, err := r.GetByID(ctx, id); err == nil {
				return s, nil
			}
		}
	}
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, teacher_id, name, token, active, created_at, expires_at
		FROM sessions WHERE token = $1
	`, token))
}

// GetByID returns a session by id, or ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (Session, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, teacher_id, name, token, active, created_at, expires_at
		FROM sessions WHERE id = $1
	`, id))
}

func (r *Repository) scanOne(row *sql.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.TeacherID, &s.Name, &s.Token, &s.Active, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return s, err
}

// TokenExists reports whether any session ever used token.
func (r *Repository) TokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sessions WHERE token = $1)
	`, token).Scan(&exists)
	return exists, err
}

// SetActive flips the active flag and drops the token from the cache when
// deactivating. Idempotent.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	var token string
	err := r.db.QueryRowContext(ctx, `
		UPDATE sessions SET active = $2 WHERE id = $1
		RETURNING token
	`, id, active).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !active && r.cache != nil {
		_ = r.cache.Del(ctx, tokenCachePrefix+token).Err()
	}
	return nil
}

// ListByTeacher returns the teacher's sessions, newest first.
func (r *Repository) ListByTeacher(ctx context.Context, teacherID string) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, teacher_id, name, token, active, created_at, expires_at
		FROM sessions WHERE teacher_id = $1
		ORDER BY created_at DESC
	`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.TeacherID, &s.Name, &s.Token, &s.Active, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
