package qr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenPayloadRoundTrip(t *testing.T) {
	payload := TokenPayload("a1b2c3d4")
	assert.Equal(t, "TEACHER_TOKEN:a1b2c3d4", payload)

	token, err := ParseToken(payload)
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3d4", token)
}

func TestParseToken_Rejects(t *testing.T) {
	for _, payload := range []string{
		"",
		"TEACHER_TOKEN:",
		"STUDENT:alice:Alice",
		"a1b2c3d4",
		"teacher_token:a1b2c3d4",
	} {
		_, err := ParseToken(payload)
		assert.ErrorIs(t, err, ErrBadPayload, "payload %q", payload)
	}
}

func TestBadgePayload(t *testing.T) {
	assert.Equal(t, "STUDENT:alice:Alice Liddell", BadgePayload("alice", "Alice Liddell"))
}

func TestPNG(t *testing.T) {
	png, err := PNG(TokenPayload("a1b2c3d4"), 128)
	require.NoError(t, err)
	// PNG magic bytes
	require.True(t, len(png) > 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])

	// zero size falls back to a sane default
	png, err = PNG("x", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}
