package goGate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goGate/credential"
	"github.com/MrEthical07/goGate/internal"
	internalaudit "github.com/MrEthical07/goGate/internal/audit"
	"github.com/MrEthical07/goGate/internal/flows"
	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/passkey"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine runs the sign-in protocol: secret, provisional session, passkey,
// then short-lived bearer tokens.
//
// An Engine is built once by [Builder.Build] and is safe for concurrent use.
type Engine struct {
	config     Config
	log        zerolog.Logger
	now        func() time.Time
	principals PrincipalStore
	sessions   SessionStore
	throttle   *rate.Limiter
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	hashes     *password.Pool
	passkeys   *passkey.Verifier
	tokens     *jwt.Manager
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) Logger() zerolog.Logger {
	return e.log
}

func (e *Engine) ready() bool {
	return e != nil && e.principals != nil && e.sessions != nil && e.tokens != nil && e.hashes != nil && e.passkeys != nil
}

func (e *Engine) observability() flows.Observability {
	return flows.Observability{
		MetricInc: func(id int) { e.metrics.Inc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Observe:   func(id int, d time.Duration) { e.metrics.Observe(MetricID(id), d) },
	}
}

/*
====================================
FIRST FACTOR
====================================
*/

// SignIn verifies identifier and secret. On success it creates a session in
// state FirstFactorOnly; the session grants nothing until VerifyPasskey.
//
// An unknown identifier and a wrong secret both return ErrInvalidCredentials.
// A locked principal returns an *Error of KindAccountLocked whose RetryAfter
// is the remaining lock time.
func (e *Engine) SignIn(ctx context.Context, identifier, secret string) (*SignInResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return nil, newError(KindInvalidCredentials, nil)
	}

	deps := flows.SignInDeps{
		Now:                     e.now,
		Policy:                  LockoutPolicy{Threshold: e.config.Lockout.Threshold, Duration: e.config.Lockout.Duration},
		SessionTTL:              e.config.Session.Lifetime,
		UpgradeOnSignIn:         e.config.Password.UpgradeOnSignIn,
		Logger:                  e.log,
		ClientIPFromContext:     clientIPFromContext,
		GetPrincipal:            e.principals.GetByIdentifier,
		RecordFailedAttempt:     e.principals.RecordFailedAttempt,
		RecordSuccessfulAttempt: e.principals.RecordSuccessfulAttempt,
		UpdateSecretHash:        e.principals.UpdateSecretHash,
		VerifySecret:            e.hashes.Verify,
		DummyVerify:             e.hashes.DummyVerify,
		HashSecret:              e.hashes.Hash,
		NewSessionID:            newSessionID,
		SaveSession:             e.sessions.Save,
		Observability:           e.observability(),
		Metrics: flows.SignInMetrics{
			Success:          int(MetricSignInSuccess),
			Failure:          int(MetricSignInFailure),
			Locked:           int(MetricSignInLocked),
			RateLimited:      int(MetricSignInRateLimited),
			LockoutTriggered: int(MetricLockoutTriggered),
			SessionCreated:   int(MetricSessionCreated),
			SecretUpgraded:   int(MetricSecretUpgraded),
		},
		Events: flows.SignInEvents{
			Success:          auditEventSignInSuccess,
			Failure:          auditEventSignInFailure,
			Locked:           auditEventSignInLocked,
			RateLimited:      auditEventSignInRateLimited,
			LockoutTriggered: auditEventLockoutTriggered,
		},
	}
	if e.throttle.Enabled() {
		deps.CheckThrottle = e.throttle.Check
		deps.RecordThrottleFailure = e.throttle.RecordFailure
	}

	res := flows.RunSignIn(ctx, identifier, secret, deps)
	if res.Outcome != flows.OutcomeOK {
		return nil, outcomeError(res.Outcome, res.RetryAfter, res.Err)
	}
	return &SignInResult{
		SessionID: res.Session.SessionID,
		Principal: PrincipalSummary{ID: res.Principal.ID, Label: res.Principal.Label},
		State:     StateFirstFactorOnly,
		ExpiresAt: time.UnixMilli(res.Session.ExpiresAt),
	}, nil
}

/*
====================================
SECOND FACTOR
====================================
*/

// VerifyPasskey checks code against principalID's enrolled passkey and marks
// sessionID fully authenticated. sessionID must come from the caller's session
// cookie, never from a request body.
//
// A wrong code returns ErrInvalidPasskey and does not count toward lockout.
// Repeating a correct code on a verified session succeeds.
func (e *Engine) VerifyPasskey(ctx context.Context, principalID, code, sessionID string) (AuthState, error) {
	if !e.ready() {
		return StateUnauthenticated, ErrEngineNotReady
	}

	res := flows.RunVerifyPasskey(ctx, principalID, strings.TrimSpace(code), sessionID, flows.PasskeyDeps{
		Now:              e.now,
		Logger:           e.log,
		GetSession:       e.sessions.Get,
		GetPrincipalByID: e.principals.GetByID,
		VerifyCode:       e.passkeys.Verify,
		MarkVerified:     e.sessions.MarkSecondFactorVerified,
		Observability:    e.observability(),
		Metrics: flows.PasskeyMetrics{
			Success: int(MetricPasskeySuccess),
			Failure: int(MetricPasskeyFailure),
		},
		Events: flows.PasskeyEvents{
			Success: auditEventPasskeySuccess,
			Failure: auditEventPasskeyFailure,
		},
	})
	switch res.Outcome {
	case flows.OutcomeOK:
		return StateFullyAuthenticated, nil
	case flows.OutcomeInvalidPasskey:
		return StateFirstFactorOnly, outcomeError(res.Outcome, 0, res.Err)
	default:
		return StateUnauthenticated, outcomeError(res.Outcome, 0, res.Err)
	}
}

/*
====================================
ACCESS TOKENS
====================================
*/

func (e *Engine) tokenMetrics() flows.TokenMetrics {
	return flows.TokenMetrics{
		Issued:       int(MetricTokenIssued),
		IssueRefused: int(MetricTokenRefused),
		Validated:    int(MetricTokenValidated),
		Expired:      int(MetricTokenExpired),
		Invalid:      int(MetricTokenInvalid),
		LatencyIssue: int(MetricIssueLatency),
		LatencyAuthN: int(MetricAuthenticateLatency),
	}
}

var tokenEvents = flows.TokenEvents{
	Issued:  auditEventTokenIssued,
	Invalid: auditEventTokenInvalid,
}

// IssueAccessToken mints a bearer token for a verified, unexpired session.
// A session still in FirstFactorOnly gets ErrSecondFactorRequired.
func (e *Engine) IssueAccessToken(ctx context.Context, sessionID string) (*AccessToken, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := flows.RunIssueToken(ctx, sessionID, flows.IssueTokenDeps{
		Now:           e.now,
		Logger:        e.log,
		GetSession:    e.sessions.Get,
		Issue:         e.tokens.Issue,
		Observability: e.observability(),
		Metrics:       e.tokenMetrics(),
		Events:        tokenEvents,
	})
	if res.Outcome != flows.OutcomeOK {
		return nil, outcomeError(res.Outcome, 0, res.Err)
	}
	return &AccessToken{
		Token:     res.Token,
		SessionID: res.Claims.SID,
		IssuedAt:  res.Claims.IssuedAt.Time,
		ExpiresAt: res.Claims.ExpiresAt.Time,
	}, nil
}

// Authenticate verifies a bearer token and returns the identity it proves.
// A token is valid strictly before its exp; there is no leeway.
//
// In ModeJWTOnly the session is not consulted, so logout does not revoke
// tokens already issued. ModeStrict also requires the session to exist.
func (e *Engine) Authenticate(ctx context.Context, token string) (AuthContext, error) {
	if !e.ready() {
		return AuthContext{}, ErrEngineNotReady
	}

	mode := flows.ModeJWTOnly
	if e.config.ValidationMode == ModeStrict {
		mode = flows.ModeStrict
	}
	res := flows.RunAuthenticate(ctx, token, flows.AuthenticateDeps{
		Now:           e.now,
		Logger:        e.log,
		Mode:          mode,
		Parse:         e.tokens.Parse,
		GetSession:    e.sessions.Get,
		Observability: e.observability(),
		Metrics:       e.tokenMetrics(),
		Events:        tokenEvents,
	})
	if res.Outcome != flows.OutcomeOK {
		return AuthContext{}, outcomeError(res.Outcome, 0, res.Err)
	}
	return AuthContext{
		PrincipalID: res.Claims.Subject,
		SessionID:   res.Claims.SID,
		TokenID:     res.Claims.ID,
		IssuedAt:    res.Claims.IssuedAt.Time,
		ExpiresAt:   res.Claims.ExpiresAt.Time,
	}, nil
}

/*
====================================
SESSIONS
====================================
*/

// ResolveSession returns the live session for sessionID. Expired and missing
// sessions are reported as ErrSessionExpired and ErrSessionNotFound.
func (e *Engine) ResolveSession(ctx context.Context, sessionID string) (*Session, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if sessionID == "" {
		return nil, newError(KindSessionNotFound, nil)
	}
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, sessionError(err)
	}
	if sess.ExpiredAt(e.now()) {
		e.log.Debug().Str("session_id", sessionID).Msg("session expired")
		return nil, newError(KindSessionExpired, session.ErrExpired)
	}
	return sess, nil
}

// SessionState reports where sessionID is in the sign-in protocol. A missing
// or expired session is StateUnauthenticated with a nil error.
func (e *Engine) SessionState(ctx context.Context, sessionID string) (AuthState, error) {
	sess, err := e.ResolveSession(ctx, sessionID)
	switch {
	case err == nil:
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired):
		return StateUnauthenticated, nil
	default:
		return StateUnauthenticated, err
	}
	if sess.SecondFactorVerified {
		return StateFullyAuthenticated, nil
	}
	return StateFirstFactorOnly, nil
}

// Logout destroys one session. Logging out a session that is already gone
// succeeds.
func (e *Engine) Logout(ctx context.Context, principalID, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if sessionID == "" {
		return nil
	}
	err := flows.RunLogout(ctx, principalID, sessionID, flows.LogoutDeps{
		DeleteSession: e.sessions.Delete,
		Observability: e.observability(),
		Metric:        int(MetricLogout),
		Event:         auditEventLogout,
	})
	if err != nil {
		return sessionError(err)
	}
	return nil
}

// LogoutAll destroys every session of principalID and returns how many were
// removed.
func (e *Engine) LogoutAll(ctx context.Context, principalID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	n, err := flows.RunLogoutAll(ctx, principalID, flows.LogoutDeps{
		DeleteAllForPrincipal: e.sessions.DeleteAllForPrincipal,
		Observability:         e.observability(),
		Metric:                int(MetricLogoutAll),
		Event:                 auditEventLogoutAll,
	})
	if err != nil {
		return 0, sessionError(err)
	}
	return n, nil
}

// SweepExpiredSessions prunes index entries of expired sessions.
func (e *Engine) SweepExpiredSessions(ctx context.Context) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	n, err := e.sessions.SweepExpired(ctx, e.now())
	if err != nil {
		e.log.Error().Err(err).Msg("session sweep failed")
		return n, sessionError(err)
	}
	if n > 0 {
		e.metrics.Add(MetricSessionsSwept, uint64(n))
		e.log.Debug().Int("sessions", n).Msg("expired sessions swept")
	}
	return n, nil
}

// Ping checks the session backend when it supports it.
func (e *Engine) Ping(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if _, err := e.pingStore(ctx); err != nil {
		return newError(KindUnavailable, err)
	}
	return nil
}

/*
====================================
ADMINISTRATION
====================================
*/

// UnlockPrincipal clears the failure counter and any lock on id.
func (e *Engine) UnlockPrincipal(ctx context.Context, id string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.principals.Unlock(ctx, id); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return ErrPrincipalNotFound
		}
		e.log.Error().Err(err).Str("principal_id", id).Msg("unlock failed")
		return newError(KindUnavailable, err)
	}
	e.metrics.Inc(MetricPrincipalUnlocked)
	e.emitAudit(ctx, auditEventPrincipalUnlocked, true, id, "", nil, nil)
	return nil
}

// LookupPrincipal returns the client-visible summary of principal id.
func (e *Engine) LookupPrincipal(ctx context.Context, id string) (PrincipalSummary, error) {
	if !e.ready() {
		return PrincipalSummary{}, ErrEngineNotReady
	}
	p, err := e.principals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return PrincipalSummary{}, ErrPrincipalNotFound
		}
		return PrincipalSummary{}, newError(KindUnavailable, err)
	}
	return PrincipalSummary{ID: p.ID, Label: p.Label}, nil
}

// ProvisionPrincipal creates a principal and enrolls its passkey. The
// returned TOTP secret is shown once and is not recoverable.
func (e *Engine) ProvisionPrincipal(ctx context.Context, req ProvisionRequest) (*ProvisionResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	req.Identifier = strings.TrimSpace(req.Identifier)

	res, err := flows.RunProvision(ctx, flows.ProvisionInput{
		Identifier: req.Identifier,
		Label:      strings.TrimSpace(req.Label),
		Secret:     req.Secret,
		PIN:        req.PIN,
	}, flows.ProvisionDeps{
		Now:           e.now,
		NewID:         uuid.NewString,
		HashSecret:    e.hashes.Hash,
		EnrollTOTP:    e.passkeys.EnrollTOTP,
		EnrollPIN:     e.passkeys.EnrollPIN,
		Create:        e.principals.Create,
		Observability: e.observability(),
		Metric:        int(MetricPrincipalProvisioned),
		Event:         auditEventPrincipalProvision,
	})
	if err != nil {
		return nil, err
	}

	out := &ProvisionResult{
		PrincipalID: res.Principal.ID,
		Identifier:  res.Principal.Identifier,
		Label:       res.Principal.Label,
		PasskeyKind: res.Enrollment.Kind,
	}
	if res.Enrollment.Kind == credential.PasskeyTOTP {
		out.TOTPSecret = res.Enrollment.Secret
		out.OTPAuthURI = res.Enrollment.URI
	}
	return out, nil
}

/*
====================================
ERROR MAPPING
====================================
*/

func outcomeError(out flows.Outcome, retryAfter time.Duration, cause error) error {
	switch out {
	case flows.OutcomeOK:
		return nil
	case flows.OutcomeRateLimited:
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return &Error{Kind: KindRateLimited, Message: ErrRateLimited.Message, RetryAfter: retryAfter}
	case flows.OutcomeInvalidCredentials:
		return newError(KindInvalidCredentials, nil)
	case flows.OutcomeLocked:
		return lockedError(retryAfter)
	case flows.OutcomeInvalidPasskey:
		return newError(KindInvalidPasskey, nil)
	case flows.OutcomeSessionNotFound:
		return newError(KindSessionNotFound, cause)
	case flows.OutcomeSessionExpired:
		return newError(KindSessionExpired, cause)
	case flows.OutcomeSecondFactorRequired:
		return newError(KindSecondFactorRequired, nil)
	case flows.OutcomeTokenMissing:
		return newError(KindUnauthenticated, nil)
	case flows.OutcomeTokenExpired:
		return newError(KindTokenExpired, cause)
	case flows.OutcomeTokenInvalid:
		return newError(KindTokenInvalid, cause)
	case flows.OutcomeUnavailable:
		return newError(KindUnavailable, cause)
	default:
		return newError(KindInternal, cause)
	}
}

func newSessionID() (string, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	return sid.String(), nil
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrPrincipalMismatch), errors.Is(err, session.ErrCorrupt):
		return newError(KindSessionNotFound, err)
	case errors.Is(err, session.ErrExpired):
		return newError(KindSessionExpired, err)
	case errors.Is(err, session.ErrRedisUnavailable):
		return newError(KindUnavailable, err)
	default:
		return newError(KindInternal, err)
	}
}
