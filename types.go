package goGate

import (
	"context"
	"time"

	"github.com/MrEthical07/goGate/credential"
	"github.com/MrEthical07/goGate/session"
)

type (
	// Principal is an authenticatable identity.
	Principal = credential.Principal
	// LockoutPolicy configures automatic lockout.
	LockoutPolicy = credential.LockoutPolicy
	// AttemptResult is returned by the atomic attempt operations.
	AttemptResult = credential.AttemptResult
	// PasskeyKind selects TOTP or static PIN verification.
	PasskeyKind = credential.PasskeyKind
	// Session is a stored sign-in session.
	Session = session.Session
)

// AuthState is the authentication state of a session as seen by a client.
type AuthState uint8

const (
	StateUnauthenticated AuthState = iota
	// StateFirstFactorOnly sessions may only call the passkey step or log out.
	StateFirstFactorOnly
	StateFullyAuthenticated
	StateAccountLocked
)

var authStateNames = [...]string{
	StateUnauthenticated:    "Unauthenticated",
	StateFirstFactorOnly:    "FirstFactorOnly",
	StateFullyAuthenticated: "FullyAuthenticated",
	StateAccountLocked:      "AccountLocked",
}

func (s AuthState) String() string {
	if int(s) < len(authStateNames) {
		return authStateNames[s]
	}
	return "Unauthenticated"
}

// MarshalText renders the state by name in JSON bodies.
func (s AuthState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PrincipalSummary is the client-visible part of a principal.
type PrincipalSummary struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// SignInResult is returned by a successful first factor.
type SignInResult struct {
	SessionID string
	Principal PrincipalSummary
	State     AuthState
	ExpiresAt time.Time
}

// AccessToken is a signed bearer token and its lifetime.
type AccessToken struct {
	Token     string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AuthContext is the identity proven by a valid access token. Guarded
// handlers receive it as a parameter.
type AuthContext struct {
	PrincipalID string    `json:"principalId"`
	SessionID   string    `json:"sessionId"`
	TokenID     string    `json:"tokenId"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ProvisionRequest describes a principal to create. Setting PIN selects
// static PIN mode; otherwise a TOTP secret is generated.
type ProvisionRequest struct {
	Identifier string
	Label      string
	Secret     string
	PIN        string
}

// ProvisionResult reports a created principal and its passkey enrollment.
// OTPAuthURI is empty in PIN mode.
type ProvisionResult struct {
	PrincipalID string
	Identifier  string
	Label       string
	PasskeyKind PasskeyKind
	TOTPSecret  string
	OTPAuthURI  string
}

// PrincipalStore persists principals. RecordFailedAttempt and
// RecordSuccessfulAttempt must each be a single atomic operation in the
// backing store.
type PrincipalStore interface {
	Create(ctx context.Context, p *Principal) error
	GetByID(ctx context.Context, id string) (*Principal, error)
	GetByIdentifier(ctx context.Context, identifier string) (*Principal, error)
	RecordFailedAttempt(ctx context.Context, id string, policy LockoutPolicy, now time.Time) (AttemptResult, error)
	RecordSuccessfulAttempt(ctx context.Context, id string, now time.Time) (AttemptResult, error)
	Unlock(ctx context.Context, id string) error
	UpdateSecretHash(ctx context.Context, id, hash string) error
}

// SessionStore persists sessions. MarkSecondFactorVerified must check
// ownership and expiry in the same atomic step that sets the flag.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	MarkSecondFactorVerified(ctx context.Context, sessionID, principalID string, now time.Time) (*Session, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteAllForPrincipal(ctx context.Context, principalID string) (int, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

var (
	_ PrincipalStore = (*credential.RedisStore)(nil)
	_ PrincipalStore = (*credential.SQLiteStore)(nil)
	_ SessionStore   = (*session.Store)(nil)
)
