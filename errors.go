package goGate

import (
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goGate/credential"
)

// ErrorKind is the closed set of failure categories the engine reports.
// Transports map a kind to a status code and wire body; nothing inside the
// engine depends on HTTP.
type ErrorKind uint8

const (
	// KindInternal is an unexpected failure. It is never shown to clients in detail.
	KindInternal ErrorKind = iota
	// KindInvalidCredentials never distinguishes unknown identifier from wrong secret.
	KindInvalidCredentials
	// KindAccountLocked carries the remaining lockout duration in Error.RetryAfter.
	KindAccountLocked
	KindInvalidPasskey
	KindSessionExpired
	KindSessionNotFound
	// KindSecondFactorRequired is returned when a first-factor-only session asks for
	// anything beyond the passkey step.
	KindSecondFactorRequired
	KindUnauthenticated
	KindTokenExpired
	KindTokenInvalid
	KindForgeryDetected
	KindRateLimited
	// KindUnavailable means a backing store could not be reached.
	KindUnavailable
)

var kindNames = [...]string{
	KindInternal:             "Internal",
	KindInvalidCredentials:   "InvalidCredentials",
	KindAccountLocked:        "AccountLocked",
	KindInvalidPasskey:       "InvalidPasskey",
	KindSessionExpired:       "SessionExpired",
	KindSessionNotFound:      "SessionNotFound",
	KindSecondFactorRequired: "SecondFactorRequired",
	KindUnauthenticated:      "Unauthenticated",
	KindTokenExpired:         "TokenExpired",
	KindTokenInvalid:         "TokenInvalid",
	KindForgeryDetected:      "ForgeryDetected",
	KindRateLimited:          "RateLimited",
	KindUnavailable:          "Unavailable",
}

// String returns the wire name of the kind.
func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "ErrorKind(" + strconv.Itoa(int(k)) + ")"
}

// Error is the tagged error value returned by every Engine operation.
//
// Two Errors match under errors.Is when their kinds are equal, so callers compare
// against the exported sentinels (ErrAccountLocked, ErrInvalidPasskey, ...) and
// read the payload with errors.As.
type Error struct {
	Kind    ErrorKind
	Message string
	// RetryAfter is set for KindAccountLocked and KindRateLimited.
	RetryAfter time.Duration
	// Err is the underlying cause. It is kept for logs and never rendered to clients.
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrInternal             = &Error{Kind: KindInternal, Message: "internal error"}
	ErrInvalidCredentials   = &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
	ErrAccountLocked        = &Error{Kind: KindAccountLocked, Message: "account locked"}
	ErrInvalidPasskey       = &Error{Kind: KindInvalidPasskey, Message: "invalid passkey"}
	ErrSessionExpired       = &Error{Kind: KindSessionExpired, Message: "session expired"}
	ErrSessionNotFound      = &Error{Kind: KindSessionNotFound, Message: "session not found"}
	ErrSecondFactorRequired = &Error{Kind: KindSecondFactorRequired, Message: "second factor required"}
	ErrUnauthenticated      = &Error{Kind: KindUnauthenticated, Message: "unauthenticated"}
	ErrTokenExpired         = &Error{Kind: KindTokenExpired, Message: "access token expired"}
	ErrTokenInvalid         = &Error{Kind: KindTokenInvalid, Message: "access token invalid"}
	ErrForgeryDetected      = &Error{Kind: KindForgeryDetected, Message: "request forgery detected"}
	ErrRateLimited          = &Error{Kind: KindRateLimited, Message: "too many requests"}
	ErrUnavailable          = &Error{Kind: KindUnavailable, Message: "backend unavailable"}

	// ErrEngineNotReady is returned when an Engine method is called on a nil or
	// partially built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrPrincipalNotFound is returned by PrincipalStore implementations and by
	// UnlockPrincipal for an unknown id.
	ErrPrincipalNotFound = credential.ErrNotFound
	// ErrPrincipalExists is returned by ProvisionPrincipal when the id or
	// identifier is taken.
	ErrPrincipalExists = credential.ErrExists
)

func newError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Message: sentinelMessage(kind), Err: cause}
}

func lockedError(retryAfter time.Duration) *Error {
	if retryAfter < time.Millisecond {
		retryAfter = time.Millisecond
	}
	return &Error{Kind: KindAccountLocked, Message: "account locked", RetryAfter: retryAfter}
}

func sentinelMessage(kind ErrorKind) string {
	switch kind {
	case KindInvalidCredentials:
		return ErrInvalidCredentials.Message
	case KindAccountLocked:
		return ErrAccountLocked.Message
	case KindInvalidPasskey:
		return ErrInvalidPasskey.Message
	case KindSessionExpired:
		return ErrSessionExpired.Message
	case KindSessionNotFound:
		return ErrSessionNotFound.Message
	case KindSecondFactorRequired:
		return ErrSecondFactorRequired.Message
	case KindUnauthenticated:
		return ErrUnauthenticated.Message
	case KindTokenExpired:
		return ErrTokenExpired.Message
	case KindTokenInvalid:
		return ErrTokenInvalid.Message
	case KindForgeryDetected:
		return ErrForgeryDetected.Message
	case KindRateLimited:
		return ErrRateLimited.Message
	case KindUnavailable:
		return ErrUnavailable.Message
	default:
		return ErrInternal.Message
	}
}

// KindOf extracts the ErrorKind of err. Errors that are not *Error report KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
