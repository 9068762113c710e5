package goGate

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/goGate/internal/audit"
	"github.com/MrEthical07/goGate/credential"
	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/session"
)

const (
	auditEventSignInSuccess      = "sign_in_success"
	auditEventSignInFailure      = "sign_in_failure"
	auditEventSignInLocked       = "sign_in_locked"
	auditEventSignInRateLimited  = "sign_in_rate_limited"
	auditEventLockoutTriggered   = "lockout_triggered"
	auditEventPasskeySuccess     = "passkey_success"
	auditEventPasskeyFailure     = "passkey_failure"
	auditEventTokenIssued        = "token_issued"
	auditEventTokenInvalid       = "token_invalid"
	auditEventLogout             = "logout"
	auditEventLogoutAll          = "logout_all"
	auditEventPrincipalProvision = "principal_provisioned"
	auditEventPrincipalUnlocked  = "principal_unlocked"
	auditEventForgeryDetected    = "forgery_detected"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrPrincipalNotFound  AuditErrorCode = "principal_not_found"
	auditErrSessionMismatch    AuditErrorCode = "session_principal_mismatch"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenInvalid       AuditErrorCode = "token_invalid"
	auditErrForgery            AuditErrorCode = "forgery"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["user_agent"] = ua
	}

	event := internalaudit.Event{
		Timestamp:   e.now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		SessionID:   sessionID,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}
	e.audit.Emit(ctx, event)
}

// ReportForgery records a rejected state-changing request. The csrf filter
// calls it through httpapi so forgery attempts land in the same audit trail.
func (e *Engine) ReportForgery(ctx context.Context, route string) {
	e.emitAudit(ctx, auditEventForgeryDetected, false, "", "", ErrForgeryDetected, func() map[string]string {
		return map[string]string{"route": route}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, credential.ErrNotFound):
		return auditErrPrincipalNotFound
	case errors.Is(err, session.ErrPrincipalMismatch):
		return auditErrSessionMismatch
	case errors.Is(err, session.ErrNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, jwt.ErrExpired):
		return auditErrTokenExpired
	case errors.Is(err, jwt.ErrMalformed):
		return auditErrTokenInvalid
	case errors.Is(err, ErrForgeryDetected):
		return auditErrForgery
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, credential.ErrUnavailable), errors.Is(err, session.ErrRedisUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
