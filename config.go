package goGate

import (
	"errors"
	"fmt"
	"time"
)

// Config is the complete engine configuration. Start from [DefaultConfig] and
// override fields; [Builder.Build] calls Validate.
type Config struct {
	JWT            JWTConfig
	Session        SessionConfig
	Password       PasswordConfig
	Passkey        PasskeyConfig
	Lockout        LockoutConfig
	Throttle       ThrottleConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	Security       SecurityConfig
	ValidationMode ValidationMode
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access tokens. Validation has no leeway.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	RedisPrefix string
	// Lifetime is the absolute session lifetime. Sessions never slide.
	Lifetime time.Duration
	// SweepInterval is how often the serve command prunes expired index entries.
	SweepInterval time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	// Workers bounds concurrent hash operations; 0 means runtime.NumCPU().
	Workers int
	// UpgradeOnSignIn rehashes bcrypt or weaker argon2id hashes after a match.
	UpgradeOnSignIn bool
}

// PasskeyConfig configures the second factor.
type PasskeyConfig struct {
	Issuer string
	Digits int
	Period uint
	Skew   uint
}

// LockoutConfig configures automatic principal lockout.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// ThrottleConfig configures the per-IP sign-in throttle.
type ThrottleConfig struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

type SecurityConfig struct {
	// ProductionMode turns some Lint warnings into Validate errors.
	ProductionMode bool
}

// ValidationMode selects how Authenticate treats the token's session.
type ValidationMode int

const (
	// ModeJWTOnly trusts a valid signature and exp; logout does not revoke
	// tokens already issued.
	ModeJWTOnly ValidationMode = iota
	// ModeStrict also requires the token's session to still exist, at the cost
	// of one Redis read per request.
	ModeStrict
)

func (m ValidationMode) String() string {
	switch m {
	case ModeJWTOnly:
		return "jwt-only"
	case ModeStrict:
		return "strict"
	default:
		return fmt.Sprintf("ValidationMode(%d)", int(m))
	}
}

// ParseValidationMode accepts "jwt-only" and "strict".
func ParseValidationMode(s string) (ValidationMode, error) {
	switch s {
	case "", "jwt-only", "jwtonly", "stateless":
		return ModeJWTOnly, nil
	case "strict":
		return ModeStrict, nil
	}
	return 0, fmt.Errorf("unknown validation mode %q", s)
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults: 5m tokens, 12h sessions,
// lock for 15m after 5 consecutive failures.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "gogate",
			Audience:      "gogate",
		},
		Session: SessionConfig{
			RedisPrefix:   "gg",
			Lifetime:      12 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:          64 * 1024,
			Time:            3,
			Parallelism:     2,
			SaltLength:      16,
			KeyLength:       32,
			MinLength:       8,
			UpgradeOnSignIn: true,
		},
		Passkey: PasskeyConfig{
			Issuer: "goGate",
			Digits: 6,
			Period: 30,
			Skew:   1,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		Throttle: ThrottleConfig{
			Enabled:     true,
			MaxAttempts: 50,
			Window:      15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		ValidationMode: ModeJWTOnly,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks every bound the engine relies on.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("JWT SigningMethod must be 'ed25519' or 'hs256'")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return errors.New("JWT PrivateKey is required")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("JWT PublicKey is required for ed25519")
	}

	// Session
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}
	if c.JWT.AccessTTL >= c.Session.Lifetime {
		return errors.New("JWT AccessTTL must be shorter than Session Lifetime")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix is required")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.Workers < 0 {
		return errors.New("Password Workers must be >= 0")
	}

	// Passkey
	if c.Passkey.Digits != 6 && c.Passkey.Digits != 8 {
		return errors.New("Passkey Digits must be 6 or 8")
	}
	if c.Passkey.Skew > 2 {
		return errors.New("Passkey Skew must be <= 2")
	}

	// Lockout
	if err := (LockoutPolicy{Threshold: c.Lockout.Threshold, Duration: c.Lockout.Duration}).Validate(); err != nil {
		return fmt.Errorf("Lockout: %w", err)
	}

	// Throttle
	if c.Throttle.Enabled {
		if c.Throttle.MaxAttempts <= 0 {
			return errors.New("Throttle MaxAttempts must be > 0 when enabled")
		}
		if c.Throttle.Window <= 0 {
			return errors.New("Throttle Window must be > 0 when enabled")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.ValidationMode != ModeJWTOnly && c.ValidationMode != ModeStrict {
		return errors.New("ValidationMode is invalid")
	}

	if c.Security.ProductionMode {
		if c.JWT.SigningMethod == "hs256" {
			return errors.New("ProductionMode requires ed25519 signing")
		}
		if !c.Throttle.Enabled {
			return errors.New("ProductionMode requires the sign-in throttle")
		}
	}
	return nil
}

// LintWarning is a configuration choice that is valid but worth a second look.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of Config.Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Code
	}
	return out
}

// Lint reports valid but risky settings. It never fails.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.JWT.AccessTTL > 15*time.Minute {
		add("access_ttl_long", "access tokens cannot be revoked in jwt-only mode; keep AccessTTL short")
	}
	if c.JWT.SigningMethod == "hs256" {
		add("hs256_signing", "hs256 shares the signing key with every verifier")
	}
	if c.Session.Lifetime > 24*time.Hour {
		add("session_lifetime_long", "sessions longer than a day outlive a working shift")
	}
	if !c.Throttle.Enabled {
		add("throttle_disabled", "sign-in throttle is off; only per-principal lockout limits guessing")
	}
	if c.Lockout.Threshold > 10 {
		add("lockout_threshold_high", "more than 10 guesses per lock window")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "security events will not be recorded")
	}
	if c.ValidationMode == ModeJWTOnly {
		add("no_revocation", "logout does not revoke issued access tokens in jwt-only mode")
	}
	return ws
}
