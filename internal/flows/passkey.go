package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGate/credential"
	"github.com/MrEthical07/goGate/session"
	"github.com/rs/zerolog"
)

// PasskeyMetrics carries metric IDs used by the second-factor flow.
type PasskeyMetrics struct {
	Success int
	Failure int
}

// PasskeyEvents carries audit event names used by the second-factor flow.
type PasskeyEvents struct {
	Success string
	Failure string
}

// PasskeyDeps captures second-factor verification dependencies.
type PasskeyDeps struct {
	Now    func() time.Time
	Logger zerolog.Logger

	GetSession       func(context.Context, string) (*session.Session, error)
	GetPrincipalByID func(context.Context, string) (*credential.Principal, error)
	VerifyCode       func(ctx context.Context, kind credential.PasskeyKind, secret, code string, now time.Time) (bool, error)
	MarkVerified     func(ctx context.Context, sessionID, principalID string, now time.Time) (*session.Session, error)

	Observability
	Metrics PasskeyMetrics
	Events  PasskeyEvents
}

// PasskeyResult is the flow-local second-factor outcome.
type PasskeyResult struct {
	Outcome Outcome
	Err     error
	Session *session.Session
}

// RunVerifyPasskey checks code for principalID against the provisional session
// sessionID and flips its second-factor flag on a match. Mismatches never
// touch the failure counter.
func RunVerifyPasskey(ctx context.Context, principalID, code, sessionID string, deps PasskeyDeps) PasskeyResult {
	deps.Observability.defaults()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.GetSession == nil || deps.GetPrincipalByID == nil || deps.VerifyCode == nil || deps.MarkVerified == nil {
		return PasskeyResult{Outcome: OutcomeInternal, Err: errors.New("passkey flow not wired")}
	}
	if sessionID == "" {
		return PasskeyResult{Outcome: OutcomeSessionNotFound}
	}

	now := deps.Now()
	sess, err := deps.GetSession(ctx, sessionID)
	if err != nil {
		if out, ok := sessionOutcome(err); ok {
			return PasskeyResult{Outcome: out, Err: err}
		}
		deps.Logger.Error().Err(err).Msg("session lookup failed")
		return PasskeyResult{Outcome: OutcomeUnavailable, Err: err}
	}
	if sess.ExpiredAt(now) {
		return PasskeyResult{Outcome: OutcomeSessionExpired, Err: session.ErrExpired}
	}
	if sess.PrincipalID != principalID {
		deps.Logger.Warn().
			Bool("security_event", true).
			Str("session_id", sessionID).
			Str("claimed_principal_id", principalID).
			Msg("passkey submitted for a session owned by another principal")
		deps.EmitAudit(ctx, deps.Events.Failure, false, principalID, sessionID, session.ErrPrincipalMismatch, nil)
		return PasskeyResult{Outcome: OutcomeSessionNotFound, Err: session.ErrPrincipalMismatch}
	}

	p, err := deps.GetPrincipalByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return PasskeyResult{Outcome: OutcomeSessionNotFound, Err: err}
		}
		deps.Logger.Error().Err(err).Str("principal_id", principalID).Msg("principal lookup failed")
		return PasskeyResult{Outcome: OutcomeUnavailable, Err: err}
	}

	ok, err := deps.VerifyCode(ctx, p.PasskeyKind, p.PasskeySecret, code, now)
	if err != nil {
		deps.Logger.Error().Err(err).Str("principal_id", principalID).Msg("passkey verification failed")
		return PasskeyResult{Outcome: OutcomeInternal, Err: err}
	}
	if !ok {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, principalID, sessionID, nil, nil)
		return PasskeyResult{Outcome: OutcomeInvalidPasskey}
	}

	// The CAS re-checks ownership and expiry, so a logout or expiry racing
	// this request still wins.
	verified, err := deps.MarkVerified(ctx, sessionID, principalID, now)
	if err != nil {
		if out, ok := sessionOutcome(err); ok {
			return PasskeyResult{Outcome: out, Err: err}
		}
		deps.Logger.Error().Err(err).Str("session_id", sessionID).Msg("second-factor flag not stored")
		return PasskeyResult{Outcome: OutcomeUnavailable, Err: err}
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, principalID, sessionID, nil, nil)
	return PasskeyResult{Outcome: OutcomeOK, Session: verified}
}

// sessionOutcome maps session store errors that are client-visible.
func sessionOutcome(err error) (Outcome, bool) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrPrincipalMismatch), errors.Is(err, session.ErrCorrupt):
		return OutcomeSessionNotFound, true
	case errors.Is(err, session.ErrExpired):
		return OutcomeSessionExpired, true
	}
	return 0, false
}
