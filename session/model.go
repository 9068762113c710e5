package session

import "time"

// Session is a provisional or fully verified authentication session.
//
// Timestamps are Unix milliseconds. A session whose SecondFactorVerified flag is
// unset grants nothing beyond the passkey step and logout.
type Session struct {
	SessionID            string
	PrincipalID          string
	CreatedAt            int64
	ExpiresAt            int64
	SecondFactorVerified bool
}

// ExpiredAt reports whether the session is expired at now. The boundary is
// exclusive: a session is already expired at exactly ExpiresAt.
func (s *Session) ExpiredAt(now time.Time) bool {
	return now.UnixMilli() >= s.ExpiresAt
}

// Remaining returns the lifetime left at now, or zero once expired.
func (s *Session) Remaining(now time.Time) time.Duration {
	d := time.Duration(s.ExpiresAt-now.UnixMilli()) * time.Millisecond
	if d < 0 {
		return 0
	}
	return d
}
