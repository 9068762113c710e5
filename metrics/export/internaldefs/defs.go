package internaldefs

import (
	goGate "github.com/MrEthical07/goGate"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goGate.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   goGate.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goGate.MetricSignInSuccess, Name: "gogate_sign_in_success_total", Help: "Sign-ins that passed the first factor."},
	{ID: goGate.MetricSignInFailure, Name: "gogate_sign_in_failure_total", Help: "Sign-ins rejected for invalid credentials."},
	{ID: goGate.MetricSignInLocked, Name: "gogate_sign_in_locked_total", Help: "Sign-ins refused because the principal was locked."},
	{ID: goGate.MetricSignInRateLimited, Name: "gogate_sign_in_rate_limited_total", Help: "Sign-ins refused by the per-IP throttle."},
	{ID: goGate.MetricLockoutTriggered, Name: "gogate_lockout_triggered_total", Help: "Failures that crossed the lockout threshold."},
	{ID: goGate.MetricSecretUpgraded, Name: "gogate_secret_upgraded_total", Help: "Secret hashes rehashed on sign-in."},
	{ID: goGate.MetricSessionCreated, Name: "gogate_session_created_total", Help: "Provisional sessions created."},
	{ID: goGate.MetricPasskeySuccess, Name: "gogate_passkey_success_total", Help: "Accepted second-factor codes."},
	{ID: goGate.MetricPasskeyFailure, Name: "gogate_passkey_failure_total", Help: "Rejected second-factor codes."},
	{ID: goGate.MetricTokenIssued, Name: "gogate_token_issued_total", Help: "Access tokens issued."},
	{ID: goGate.MetricTokenRefused, Name: "gogate_token_refused_total", Help: "Token requests on sessions without a verified second factor."},
	{ID: goGate.MetricTokenValidated, Name: "gogate_token_validated_total", Help: "Access tokens accepted."},
	{ID: goGate.MetricTokenExpired, Name: "gogate_token_expired_total", Help: "Access tokens rejected as expired."},
	{ID: goGate.MetricTokenInvalid, Name: "gogate_token_invalid_total", Help: "Access tokens rejected as invalid."},
	{ID: goGate.MetricLogout, Name: "gogate_logout_total", Help: "Single-session logouts."},
	{ID: goGate.MetricLogoutAll, Name: "gogate_logout_all_total", Help: "Logout-all operations."},
	{ID: goGate.MetricPrincipalProvisioned, Name: "gogate_principal_provisioned_total", Help: "Principals created."},
	{ID: goGate.MetricPrincipalUnlocked, Name: "gogate_principal_unlocked_total", Help: "Administrative unlocks."},
	{ID: goGate.MetricSessionsSwept, Name: "gogate_sessions_swept_total", Help: "Expired session index entries pruned."},
}

var HistogramDefs = []HistogramDef{
	{ID: goGate.MetricIssueLatency, Name: "gogate_token_issue_latency_seconds", Help: "Access token issuance latency."},
	{ID: goGate.MetricAuthenticateLatency, Name: "gogate_authenticate_latency_seconds", Help: "Access token verification latency."},
}

// AuditDroppedName and AuditDroppedHelp describe the dispatcher drop counter.
const (
	AuditDroppedName = "gogate_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one more bucket for everything above the last bound.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf last, for exporters that
// cannot carry a le label.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the engine's eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
