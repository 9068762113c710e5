package internal

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// SessionID is 128 bits from crypto/rand. Its string form is the only
// credential a first-factor session carries, so it is never derived from
// anything else.
type SessionID [16]byte

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID
	if len(sessionID) != base64.RawURLEncoding.EncodedLen(len(sid)) {
		return sid, errors.New("invalid session id size")
	}

	raw, err := base64.RawURLEncoding.Strict().DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}
	copy(sid[:], raw)
	return sid, nil
}

// NewToken returns n random bytes encoded base64url without padding.
func NewToken(n int) (string, error) {
	if n < 16 {
		return "", errors.New("token too short")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// EqualTokens compares two tokens in constant time. Empty never matches.
func EqualTokens(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
