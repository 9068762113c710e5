package security

import "time"

type PasswordReport struct {
	Memory      uint32 `json:"memoryKiB"`
	Time        uint32 `json:"time"`
	Parallelism uint8  `json:"parallelism"`
	SaltLength  uint32 `json:"saltLength"`
	KeyLength   uint32 `json:"keyLength"`
}

// Report summarizes the security-relevant configuration of a running engine.
type Report struct {
	ProductionMode   bool           `json:"productionMode"`
	SigningAlgorithm string         `json:"signingAlgorithm"`
	ValidationMode   string         `json:"validationMode"`
	Revocation       bool           `json:"revocation"`
	AccessTTL        time.Duration  `json:"accessTtlNs"`
	SessionLifetime  time.Duration  `json:"sessionLifetimeNs"`
	Argon2           PasswordReport `json:"argon2"`
	PasskeyDigits    int            `json:"passkeyDigits"`
	LockoutActive    bool           `json:"lockoutActive"`
	ThrottleActive   bool           `json:"throttleActive"`
	AuditActive      bool           `json:"auditActive"`
	// Warnings holds the lint codes of the configuration.
	Warnings []string `json:"warnings"`
}

type ReportInput struct {
	ProductionMode   bool
	SigningAlgorithm string
	ValidationMode   string
	StrictMode       bool
	AccessTTL        time.Duration
	SessionLifetime  time.Duration
	Password         PasswordReport
	PasskeyDigits    int
	LockoutThreshold int
	LockoutDuration  time.Duration
	ThrottleEnabled  bool
	ThrottleAttempts int
	ThrottleWindow   time.Duration
	AuditEnabled     bool
	AuditBufferSize  int
	Warnings         []string
}

func BuildReport(input ReportInput) Report {
	warnings := make([]string, len(input.Warnings))
	copy(warnings, input.Warnings)

	return Report{
		ProductionMode:   input.ProductionMode,
		SigningAlgorithm: input.SigningAlgorithm,
		ValidationMode:   input.ValidationMode,
		Revocation:       input.StrictMode,
		AccessTTL:        input.AccessTTL,
		SessionLifetime:  input.SessionLifetime,
		Argon2:           input.Password,
		PasskeyDigits:    input.PasskeyDigits,
		LockoutActive:    input.LockoutThreshold > 0 && input.LockoutDuration > 0,
		ThrottleActive:   input.ThrottleEnabled && input.ThrottleAttempts > 0 && input.ThrottleWindow > 0,
		AuditActive:      input.AuditEnabled && input.AuditBufferSize > 0,
		Warnings:         warnings,
	}
}
