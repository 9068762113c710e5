package flows

import (
	"context"
	"time"
)

// Outcome classifies a flow result for root-level error mapping.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRateLimited
	OutcomeInvalidCredentials
	OutcomeLocked
	OutcomeInvalidPasskey
	OutcomeSessionNotFound
	OutcomeSessionExpired
	OutcomeSecondFactorRequired
	OutcomeTokenMissing
	OutcomeTokenExpired
	OutcomeTokenInvalid
	OutcomeUnavailable
	OutcomeInternal
)

// AuditFunc emits one audit record. meta is evaluated lazily so callers with
// auditing disabled pay nothing for it.
type AuditFunc func(ctx context.Context, event string, success bool, principalID, sessionID string, err error, meta func() map[string]string)

// Observability is embedded in every deps struct.
type Observability struct {
	MetricInc func(int)
	EmitAudit AuditFunc
	Observe   func(int, time.Duration)
}

func (o *Observability) defaults() {
	if o.MetricInc == nil {
		o.MetricInc = func(int) {}
	}
	if o.EmitAudit == nil {
		o.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if o.Observe == nil {
		o.Observe = func(int, time.Duration) {}
	}
}
