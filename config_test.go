package goGate

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with keys",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "missing private key",
			mutate: func(c *Config) {
				c.JWT.PrivateKey = nil
			},
			wantValid: false,
		},
		{
			name: "ed25519 without public key",
			mutate: func(c *Config) {
				c.JWT.PublicKey = nil
			},
			wantValid: false,
		},
		{
			name: "hs256 valid",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "hs256"
				c.JWT.PrivateKey = make([]byte, 32)
				c.JWT.PublicKey = nil
			},
			wantValid: true,
		},
		{
			name: "unknown signing method",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "token lifetime equal to session lifetime",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 12 * time.Hour
			},
			wantValid: false,
		},
		{
			name: "token lifetime just below session lifetime",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 12*time.Hour - time.Second
			},
			wantValid: true,
		},
		{
			name: "zero lockout threshold",
			mutate: func(c *Config) {
				c.Lockout.Threshold = 0
			},
			wantValid: false,
		},
		{
			name: "zero lockout duration",
			mutate: func(c *Config) {
				c.Lockout.Duration = 0
			},
			wantValid: false,
		},
		{
			name: "passkey digits 7",
			mutate: func(c *Config) {
				c.Passkey.Digits = 7
			},
			wantValid: false,
		},
		{
			name: "throttle enabled without window",
			mutate: func(c *Config) {
				c.Throttle.Window = 0
			},
			wantValid: false,
		},
		{
			name: "throttle disabled ignores bounds",
			mutate: func(c *Config) {
				c.Throttle = ThrottleConfig{}
			},
			wantValid: true,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "weak argon2 memory",
			mutate: func(c *Config) {
				c.Password.Memory = 1024
			},
			wantValid: false,
		},
		{
			name: "unknown validation mode",
			mutate: func(c *Config) {
				c.ValidationMode = ValidationMode(9)
			},
			wantValid: false,
		},
		{
			name: "production forbids hs256",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.JWT.SigningMethod = "hs256"
				c.JWT.PrivateKey = make([]byte, 32)
			},
			wantValid: false,
		},
		{
			name: "production requires throttle",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.Throttle.Enabled = false
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.JWT.AccessTTL != 5*time.Minute {
		t.Fatalf("AccessTTL = %v", cfg.JWT.AccessTTL)
	}
	if cfg.Session.Lifetime != 12*time.Hour {
		t.Fatalf("Lifetime = %v", cfg.Session.Lifetime)
	}
	if cfg.Lockout.Threshold != 5 || cfg.Lockout.Duration != 15*time.Minute {
		t.Fatalf("Lockout = %+v", cfg.Lockout)
	}
	if cfg.ValidationMode != ModeJWTOnly {
		t.Fatalf("ValidationMode = %s", cfg.ValidationMode)
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := testConfig(t)
	clone := cloneConfig(cfg)
	clone.JWT.PrivateKey[0] ^= 0xff
	if cfg.JWT.PrivateKey[0] == clone.JWT.PrivateKey[0] {
		t.Fatal("clone shares key backing array")
	}
}

func TestParseValidationMode(t *testing.T) {
	for in, want := range map[string]ValidationMode{"": ModeJWTOnly, "jwt-only": ModeJWTOnly, "strict": ModeStrict} {
		got, err := ParseValidationMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseValidationMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseValidationMode("lenient"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
