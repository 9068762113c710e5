package credential

import (
	"errors"
	"time"
)

// PasskeyKind selects how a principal's second factor is checked.
type PasskeyKind string

const (
	// PasskeyTOTP is an RFC 6238 time-based code derived from a base32 secret.
	PasskeyTOTP PasskeyKind = "totp"
	// PasskeyPIN is a static numeric code stored as a password hash.
	PasskeyPIN PasskeyKind = "pin"
)

// Principal is an authenticatable identity.
//
// LockedUntil is the zero time when no lock has ever been set. FailedAttempts
// is reset to zero both on a successful sign-in and when a lock is applied.
type Principal struct {
	ID             string
	Identifier     string
	Label          string
	SecretHash     string
	FailedAttempts int
	LockedUntil    time.Time
	PasskeyKind    PasskeyKind
	PasskeySecret  string
	CreatedAt      time.Time
}

// LockedAt reports whether the principal is locked at now.
func (p *Principal) LockedAt(now time.Time) bool {
	return !p.LockedUntil.IsZero() && p.LockedUntil.After(now)
}

// LockoutPolicy configures automatic lockout.
type LockoutPolicy struct {
	// Threshold is the number of consecutive failures that triggers a lock.
	Threshold int
	// Duration is how long a triggered lock lasts.
	Duration time.Duration
}

// Validate checks the policy bounds.
func (p LockoutPolicy) Validate() error {
	if p.Threshold < 1 {
		return errors.New("lockout threshold must be >= 1")
	}
	if p.Duration <= 0 {
		return errors.New("lockout duration must be > 0")
	}
	return nil
}

// AttemptResult is the state returned by the atomic attempt operations.
type AttemptResult struct {
	FailedAttempts int
	LockedUntil    time.Time
	// Locked is true when the principal is locked at the evaluated instant,
	// whether the lock was set by this call or was already in force.
	Locked bool
	// JustLocked is true only for the call that crossed the threshold.
	JustLocked bool
}

var (
	// ErrNotFound is returned when no principal matches.
	ErrNotFound = errors.New("principal not found")
	// ErrExists is returned by Create when the id or identifier is taken.
	ErrExists = errors.New("principal already exists")
	// ErrUnavailable wraps backend I/O failures.
	ErrUnavailable = errors.New("credential store unavailable")
)

func millisOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timeOrZero(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
