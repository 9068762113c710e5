package flows

import (
	"context"
	"errors"
	"strconv"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	DeleteSession         func(context.Context, string) error
	DeleteAllForPrincipal func(context.Context, string) (int, error)

	Observability
	Metric int
	Event  string
}

// RunLogout destroys one session. A missing session is already logged out.
func RunLogout(ctx context.Context, principalID, sessionID string, deps LogoutDeps) error {
	deps.Observability.defaults()
	if deps.DeleteSession == nil {
		return errors.New("logout flow not wired")
	}
	if err := deps.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	deps.MetricInc(deps.Metric)
	deps.EmitAudit(ctx, deps.Event, true, principalID, sessionID, nil, nil)
	return nil
}

// RunLogoutAll destroys every session of principalID and reports how many went.
func RunLogoutAll(ctx context.Context, principalID string, deps LogoutDeps) (int, error) {
	deps.Observability.defaults()
	if deps.DeleteAllForPrincipal == nil {
		return 0, errors.New("logout flow not wired")
	}
	n, err := deps.DeleteAllForPrincipal(ctx, principalID)
	if err != nil {
		return 0, err
	}
	deps.MetricInc(deps.Metric)
	deps.EmitAudit(ctx, deps.Event, true, principalID, "", nil, func() map[string]string {
		return map[string]string{"sessions": strconv.Itoa(n)}
	})
	return n, nil
}
