package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func neverExists(context.Context, string) (bool, error) { return false, nil }

func TestIssuer_TokensAreUniqueAndOpaque(t *testing.T) {
	issuer := NewIssuer(neverExists, 5)
	seen := make(map[string]bool)

	for i := 0; i < 1000; i++ {
		token, err := issuer.Issue(context.Background())
		require.NoError(t, err)
		assert.Len(t, token, 2*tokenBytes)
		assert.False(t, seen[token], "token %s issued twice", token)
		seen[token] = true
	}
}

func TestIssuer_RetriesOnCollision(t *testing.T) {
	calls := 0
	collideTwice := func(context.Context, string) (bool, error) {
		calls++
		return calls <= 2, nil
	}

	token, err := NewIssuer(collideTwice, 5).Issue(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, 3, calls)
}

func TestIssuer_RetryExhausted(t *testing.T) {
	alwaysTaken := func(context.Context, string) (bool, error) { return true, nil }

	_, err := NewIssuer(alwaysTaken, 3).Issue(context.Background())
	assert.ErrorIs(t, err, ErrTokenRetryExhausted)
}

func TestIssuer_PropagatesStoreError(t *testing.T) {
	boom := errors.New("store down")
	failing := func(context.Context, string) (bool, error) { return false, boom }

	_, err := NewIssuer(failing, 3).Issue(context.Background())
	assert.ErrorIs(t, err, boom)
}
