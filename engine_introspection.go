package goGate

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/MrEthical07/goGate/session"
)

// SessionInfo is the client-safe view of a session.
type SessionInfo struct {
	SessionID            string    `json:"sessionId"`
	CreatedAt            time.Time `json:"createdAt"`
	ExpiresAt            time.Time `json:"expiresAt"`
	SecondFactorVerified bool      `json:"secondFactorVerified"`
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	StoreAvailable bool          `json:"storeAvailable"`
	StoreLatency   time.Duration `json:"storeLatencyNs"`
}

// sessionIndex is implemented by session stores that keep a per-principal
// index, such as *session.Store.
type sessionIndex interface {
	ActiveSessionIDs(ctx context.Context, principalID string) ([]string, error)
}

// ListSessions returns principalID's live sessions, oldest first. Index
// entries whose session is gone or expired are skipped.
func (e *Engine) ListSessions(ctx context.Context, principalID string) ([]SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if principalID == "" {
		return nil, ErrPrincipalNotFound
	}
	idx, ok := e.sessions.(sessionIndex)
	if !ok {
		return nil, newError(KindInternal, errors.New("session store has no principal index"))
	}

	ids, err := idx.ActiveSessionIDs(ctx, principalID)
	if err != nil {
		return nil, sessionError(err)
	}

	now := e.now()
	out := make([]SessionInfo, 0, len(ids))
	for _, id := range ids {
		sess, err := e.sessions.Get(ctx, id)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrCorrupt) {
				continue
			}
			return nil, sessionError(err)
		}
		if sess.PrincipalID != principalID || sess.ExpiredAt(now) {
			continue
		}
		out = append(out, toSessionInfo(sess))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Health pings the session store. Stores without a Ping method report
// available with zero latency.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if !e.ready() {
		return HealthStatus{}
	}
	latency, err := e.pingStore(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("session store ping failed")
	}
	return HealthStatus{
		StoreAvailable: err == nil,
		StoreLatency:   latency,
	}
}

// pingStore reports zero latency and no error for stores without Ping.
func (e *Engine) pingStore(ctx context.Context) (time.Duration, error) {
	p, ok := e.sessions.(interface {
		Ping(context.Context) (time.Duration, error)
	})
	if !ok {
		return 0, nil
	}
	return p.Ping(ctx)
}

func toSessionInfo(sess *Session) SessionInfo {
	return SessionInfo{
		SessionID:            sess.SessionID,
		CreatedAt:            time.UnixMilli(sess.CreatedAt).UTC(),
		ExpiresAt:            time.UnixMilli(sess.ExpiresAt).UTC(),
		SecondFactorVerified: sess.SecondFactorVerified,
	}
}
