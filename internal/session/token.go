package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenBytes gives 32 hex chars; collisions are negligible but still
// checked against the store.
const tokenBytes = 16

// ExistsFunc reports whether a token is already taken.
type ExistsFunc func(ctx context.Context, token string) (bool, error)

// Issuer generates unique opaque session tokens.
type Issuer struct {
	exists     ExistsFunc
	maxRetries int
	randRead   func(b []byte) (int, error)
}

// NewIssuer creates an issuer that checks candidates with exists and
// gives up after maxRetries collisions.
func NewIssuer(exists ExistsFunc, maxRetries int) *Issuer {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Issuer{exists: exists, maxRetries: maxRetries, randRead: rand.Read}
}

// Issue returns a fresh token not present in the store.
// Fails with ErrTokenRetryExhausted when every candidate collided.
func (i *Issuer) Issue(ctx context.Context) (string, error) {
	for attempt := 0; attempt < i.maxRetries; attempt++ {
		buf := make([]byte, tokenBytes)
		if _, err := i.randRead(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		token := hex.EncodeToString(buf)

		taken, err := i.exists(ctx, token)
		if err != nil {
			return "", fmt.Errorf("check token uniqueness: %w", err)
		}
		if !taken {
			return token, nil
		}
	}
	return "", ErrTokenRetryExhausted
}
