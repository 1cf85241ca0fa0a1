package qr

import (
	"errors"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Payload prefixes. Session tokens travel inside the QR image as
// TEACHER_TOKEN:<token>; student badges as STUDENT:<username>:<name>.
const (
	tokenPrefix = "TEACHER_TOKEN:"
	badgePrefix = "STUDENT:"
)

// ErrBadPayload indicates a scanned payload that is not a session token.
var ErrBadPayload = errors.New("unrecognized QR payload")

// TokenPayload wraps a session token in the wire format.
func TokenPayload(token string) string {
	return tokenPrefix + token
}

// ParseToken extracts the session token from a scanned payload.
func ParseToken(payload string) (string, error) {
	if !strings.HasPrefix(payload, tokenPrefix) {
		return "", ErrBadPayload
	}
	token := payload[len(tokenPrefix):]
	if token == "" {
		return "", ErrBadPayload
	}
	return token, nil
}

// BadgePayload is the payload rendered on a student's personal QR badge.
func BadgePayload(username, name string) string {
	return badgePrefix + username + ":" + name
}

// PNG renders a payload as a QR PNG of the given pixel size.
func PNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}
