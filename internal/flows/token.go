package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/session"
	"github.com/rs/zerolog"
)

// Validation modes, mirrored by the root package.
const (
	ModeJWTOnly = iota
	ModeStrict
)

// TokenMetrics carries metric IDs used by issuance and validation.
type TokenMetrics struct {
	Issued       int
	IssueRefused int
	Validated    int
	Expired      int
	Invalid      int
	LatencyIssue int
	LatencyAuthN int
}

// TokenEvents carries audit event names used by issuance and validation.
type TokenEvents struct {
	Issued  string
	Invalid string
}

// IssueTokenDeps captures access token issuance dependencies.
type IssueTokenDeps struct {
	Now        func() time.Time
	Logger     zerolog.Logger
	GetSession func(context.Context, string) (*session.Session, error)
	Issue      func(principalID, sessionID string) (string, *jwt.Claims, error)

	Observability
	Metrics TokenMetrics
	Events  TokenEvents
}

// IssueTokenResult is the flow-local issuance outcome.
type IssueTokenResult struct {
	Outcome Outcome
	Err     error
	Token   string
	Claims  *jwt.Claims
}

// RunIssueToken mints an access token for a live, second-factor-verified session.
func RunIssueToken(ctx context.Context, sessionID string, deps IssueTokenDeps) IssueTokenResult {
	deps.Observability.defaults()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.GetSession == nil || deps.Issue == nil {
		return IssueTokenResult{Outcome: OutcomeInternal, Err: errors.New("token flow not wired")}
	}
	start := deps.Now()
	defer func() { deps.Observe(deps.Metrics.LatencyIssue, deps.Now().Sub(start)) }()

	if sessionID == "" {
		return IssueTokenResult{Outcome: OutcomeSessionNotFound}
	}
	sess, err := deps.GetSession(ctx, sessionID)
	if err != nil {
		if out, ok := sessionOutcome(err); ok {
			return IssueTokenResult{Outcome: out, Err: err}
		}
		deps.Logger.Error().Err(err).Msg("session lookup failed")
		return IssueTokenResult{Outcome: OutcomeUnavailable, Err: err}
	}
	if sess.ExpiredAt(start) {
		return IssueTokenResult{Outcome: OutcomeSessionExpired, Err: session.ErrExpired}
	}
	if !sess.SecondFactorVerified {
		deps.MetricInc(deps.Metrics.IssueRefused)
		return IssueTokenResult{Outcome: OutcomeSecondFactorRequired}
	}

	token, claims, err := deps.Issue(sess.PrincipalID, sess.SessionID)
	if err != nil {
		deps.Logger.Error().Err(err).Msg("access token signing failed")
		return IssueTokenResult{Outcome: OutcomeInternal, Err: err}
	}
	deps.MetricInc(deps.Metrics.Issued)
	deps.EmitAudit(ctx, deps.Events.Issued, true, sess.PrincipalID, sess.SessionID, nil, func() map[string]string {
		return map[string]string{"jti": claims.ID}
	})
	return IssueTokenResult{Outcome: OutcomeOK, Token: token, Claims: claims}
}

// AuthenticateDeps captures bearer token validation dependencies.
type AuthenticateDeps struct {
	Now        func() time.Time
	Logger     zerolog.Logger
	Mode       int
	Parse      func(string) (*jwt.Claims, error)
	GetSession func(context.Context, string) (*session.Session, error)

	Observability
	Metrics TokenMetrics
	Events  TokenEvents
}

// AuthenticateResult is the flow-local validation outcome.
type AuthenticateResult struct {
	Outcome Outcome
	Err     error
	Claims  *jwt.Claims
}

// RunAuthenticate validates a bearer token. Expiry is a hard boundary with no
// grace window. In ModeStrict the token's session must also still exist.
func RunAuthenticate(ctx context.Context, token string, deps AuthenticateDeps) AuthenticateResult {
	deps.Observability.defaults()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Parse == nil {
		return AuthenticateResult{Outcome: OutcomeInternal, Err: errors.New("authenticate flow not wired")}
	}
	start := deps.Now()
	defer func() { deps.Observe(deps.Metrics.LatencyAuthN, deps.Now().Sub(start)) }()

	token = strings.TrimSpace(token)
	if token == "" {
		return AuthenticateResult{Outcome: OutcomeTokenMissing}
	}

	claims, err := deps.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			deps.Logger.Debug().Msg("access token expired")
			deps.MetricInc(deps.Metrics.Expired)
			return AuthenticateResult{Outcome: OutcomeTokenExpired, Err: err}
		}
		deps.Logger.Warn().Bool("security_event", true).Err(err).Msg("access token rejected")
		deps.MetricInc(deps.Metrics.Invalid)
		deps.EmitAudit(ctx, deps.Events.Invalid, false, "", "", err, nil)
		return AuthenticateResult{Outcome: OutcomeTokenInvalid, Err: err}
	}

	if deps.Mode == ModeStrict {
		if deps.GetSession == nil {
			return AuthenticateResult{Outcome: OutcomeInternal, Err: errors.New("strict mode requires a session store")}
		}
		sess, err := deps.GetSession(ctx, claims.SID)
		if err != nil {
			if _, ok := sessionOutcome(err); ok {
				deps.MetricInc(deps.Metrics.Invalid)
				return AuthenticateResult{Outcome: OutcomeTokenInvalid, Err: err}
			}
			deps.Logger.Error().Err(err).Msg("session lookup failed")
			return AuthenticateResult{Outcome: OutcomeUnavailable, Err: err}
		}
		if sess.PrincipalID != claims.Subject || !sess.SecondFactorVerified || sess.ExpiredAt(start) {
			deps.MetricInc(deps.Metrics.Invalid)
			return AuthenticateResult{Outcome: OutcomeTokenInvalid, Err: session.ErrNotFound}
		}
	}

	deps.MetricInc(deps.Metrics.Validated)
	return AuthenticateResult{Outcome: OutcomeOK, Claims: claims}
}
