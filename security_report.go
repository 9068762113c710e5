package goGate

import "github.com/MrEthical07/goGate/internal/security"

type (
	// SecurityReport summarizes the engine's security posture for operators.
	SecurityReport = security.Report
	// PasswordConfigReport is the argon2id work factor in a SecurityReport.
	PasswordConfigReport = security.PasswordReport
)

// SecurityReport returns the posture of the running configuration, including
// its Lint warning codes. It never touches the backends.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config

	return security.BuildReport(security.ReportInput{
		ProductionMode:   cfg.Security.ProductionMode,
		SigningAlgorithm: cfg.JWT.SigningMethod,
		ValidationMode:   cfg.ValidationMode.String(),
		StrictMode:       cfg.ValidationMode == ModeStrict,
		AccessTTL:        cfg.JWT.AccessTTL,
		SessionLifetime:  cfg.Session.Lifetime,
		Password: PasswordConfigReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
		PasskeyDigits:    cfg.Passkey.Digits,
		LockoutThreshold: cfg.Lockout.Threshold,
		LockoutDuration:  cfg.Lockout.Duration,
		ThrottleEnabled:  cfg.Throttle.Enabled,
		ThrottleAttempts: cfg.Throttle.MaxAttempts,
		ThrottleWindow:   cfg.Throttle.Window,
		AuditEnabled:     cfg.Audit.Enabled,
		AuditBufferSize:  cfg.Audit.BufferSize,
		Warnings:         cfg.Lint().Codes(),
	})
}
