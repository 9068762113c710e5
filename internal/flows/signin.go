package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGate/credential"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/session"
	"github.com/rs/zerolog"
)

// SignInMetrics carries metric IDs used by the sign-in flow.
type SignInMetrics struct {
	Success          int
	Failure          int
	Locked           int
	RateLimited      int
	LockoutTriggered int
	SessionCreated   int
	SecretUpgraded   int
}

// SignInEvents carries audit event names used by the sign-in flow.
type SignInEvents struct {
	Success          string
	Failure          string
	Locked           string
	RateLimited      string
	LockoutTriggered string
}

// SignInDeps captures sign-in dependencies.
type SignInDeps struct {
	Now             func() time.Time
	Policy          credential.LockoutPolicy
	SessionTTL      time.Duration
	UpgradeOnSignIn bool
	Logger          zerolog.Logger

	ClientIPFromContext func(context.Context) string
	// CheckThrottle returns a positive retry-after when ip is over budget.
	CheckThrottle         func(context.Context, string) (time.Duration, error)
	RecordThrottleFailure func(context.Context, string) error

	GetPrincipal            func(context.Context, string) (*credential.Principal, error)
	RecordFailedAttempt     func(context.Context, string, credential.LockoutPolicy, time.Time) (credential.AttemptResult, error)
	RecordSuccessfulAttempt func(context.Context, string, time.Time) (credential.AttemptResult, error)
	UpdateSecretHash        func(context.Context, string, string) error

	VerifySecret func(context.Context, string, string) (password.VerifyResult, error)
	DummyVerify  func(context.Context, string) error
	HashSecret   func(context.Context, string) (string, error)

	NewSessionID func() (string, error)
	SaveSession  func(context.Context, *session.Session) error

	Observability
	Metrics SignInMetrics
	Events  SignInEvents
}

// SignInResult is the flow-local sign-in outcome.
type SignInResult struct {
	Outcome    Outcome
	Err        error
	RetryAfter time.Duration
	Principal  *credential.Principal
	Session    *session.Session
}

// RunSignIn verifies identifier/secret and, on success, creates a provisional
// session with the second-factor flag unset.
//
// Every call that reaches secret verification mutates the failure counter
// exactly once: RecordFailedAttempt on mismatch, RecordSuccessfulAttempt on
// match. Both are single atomic store operations.
func RunSignIn(ctx context.Context, identifier, secret string, deps SignInDeps) SignInResult {
	deps.Observability.defaults()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.GetPrincipal == nil || deps.VerifySecret == nil || deps.DummyVerify == nil ||
		deps.RecordFailedAttempt == nil || deps.RecordSuccessfulAttempt == nil ||
		deps.NewSessionID == nil || deps.SaveSession == nil {
		return SignInResult{Outcome: OutcomeInternal, Err: errors.New("sign-in flow not wired")}
	}

	ip := deps.ClientIPFromContext(ctx)
	now := deps.Now()

	if deps.CheckThrottle != nil && ip != "" {
		retry, err := deps.CheckThrottle(ctx, ip)
		if err != nil {
			deps.Logger.Error().Err(err).Msg("sign-in throttle check failed")
			return SignInResult{Outcome: OutcomeUnavailable, Err: err}
		}
		if retry > 0 {
			deps.MetricInc(deps.Metrics.RateLimited)
			deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", "", nil, func() map[string]string {
				return map[string]string{"ip": ip}
			})
			return SignInResult{Outcome: OutcomeRateLimited, RetryAfter: retry}
		}
	}

	failThrottle := func() {
		if deps.RecordThrottleFailure != nil && ip != "" {
			if err := deps.RecordThrottleFailure(ctx, ip); err != nil {
				deps.Logger.Error().Err(err).Msg("sign-in throttle update failed")
			}
		}
	}

	p, err := deps.GetPrincipal(ctx, identifier)
	if err != nil {
		if !errors.Is(err, credential.ErrNotFound) {
			deps.Logger.Error().Err(err).Msg("principal lookup failed")
			return SignInResult{Outcome: OutcomeUnavailable, Err: err}
		}
		// Same hashing cost as a real principal.
		_ = deps.DummyVerify(ctx, secret)
		failThrottle()
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", "", credential.ErrNotFound, nil)
		return SignInResult{Outcome: OutcomeInvalidCredentials}
	}

	if p.LockedAt(now) {
		retry := p.LockedUntil.Sub(now)
		deps.Logger.Debug().Str("principal_id", p.ID).Dur("retry_after", retry).Msg("sign-in refused: account locked")
		deps.MetricInc(deps.Metrics.Locked)
		deps.EmitAudit(ctx, deps.Events.Locked, false, p.ID, "", nil, nil)
		return SignInResult{Outcome: OutcomeLocked, RetryAfter: retry}
	}

	verified, err := deps.VerifySecret(ctx, secret, p.SecretHash)
	if err != nil {
		if ctx.Err() != nil {
			return SignInResult{Outcome: OutcomeUnavailable, Err: err}
		}
		deps.Logger.Error().Err(err).Str("principal_id", p.ID).Msg("stored secret hash unreadable")
		return SignInResult{Outcome: OutcomeInternal, Err: err}
	}

	if !verified.Match {
		res, err := deps.RecordFailedAttempt(ctx, p.ID, deps.Policy, now)
		if err != nil {
			deps.Logger.Error().Err(err).Str("principal_id", p.ID).Msg("failed attempt not recorded")
			return SignInResult{Outcome: OutcomeUnavailable, Err: err}
		}
		failThrottle()
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, p.ID, "", nil, nil)
		if res.JustLocked {
			deps.Logger.Debug().Str("principal_id", p.ID).Time("locked_until", res.LockedUntil).Msg("lockout threshold reached")
			deps.MetricInc(deps.Metrics.LockoutTriggered)
			deps.EmitAudit(ctx, deps.Events.LockoutTriggered, true, p.ID, "", nil, func() map[string]string {
				return map[string]string{"locked_until": res.LockedUntil.UTC().Format(time.RFC3339)}
			})
		}
		return SignInResult{Outcome: OutcomeInvalidCredentials}
	}

	res, err := deps.RecordSuccessfulAttempt(ctx, p.ID, now)
	if err != nil {
		deps.Logger.Error().Err(err).Str("principal_id", p.ID).Msg("successful attempt not recorded")
		return SignInResult{Outcome: OutcomeUnavailable, Err: err}
	}
	if res.Locked {
		// A concurrent failure locked the principal between our read and now.
		retry := res.LockedUntil.Sub(now)
		deps.MetricInc(deps.Metrics.Locked)
		deps.EmitAudit(ctx, deps.Events.Locked, false, p.ID, "", nil, nil)
		return SignInResult{Outcome: OutcomeLocked, RetryAfter: retry}
	}

	sid, err := deps.NewSessionID()
	if err != nil {
		deps.Logger.Error().Err(err).Str("principal_id", p.ID).Msg("session id generation failed")
		return SignInResult{Outcome: OutcomeInternal, Err: err}
	}
	sess := &session.Session{
		SessionID:   sid,
		PrincipalID: p.ID,
		CreatedAt:   now.UnixMilli(),
		ExpiresAt:   now.Add(deps.SessionTTL).UnixMilli(),
	}
	if err := deps.SaveSession(ctx, sess); err != nil {
		deps.Logger.Error().Err(err).Str("principal_id", p.ID).Msg("session save failed")
		return SignInResult{Outcome: OutcomeUnavailable, Err: err}
	}
	deps.MetricInc(deps.Metrics.SessionCreated)

	if deps.UpgradeOnSignIn && verified.NeedsUpgrade && deps.HashSecret != nil && deps.UpdateSecretHash != nil {
		if hash, err := deps.HashSecret(ctx, secret); err == nil {
			if err := deps.UpdateSecretHash(ctx, p.ID, hash); err != nil {
				deps.Logger.Warn().Err(err).Str("principal_id", p.ID).Msg("secret hash upgrade not stored")
			} else {
				deps.MetricInc(deps.Metrics.SecretUpgraded)
			}
		}
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, p.ID, sess.SessionID, nil, nil)
	return SignInResult{Outcome: OutcomeOK, Principal: p, Session: sess}
}
