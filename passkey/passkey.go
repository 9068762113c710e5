package passkey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goGate/credential"
	"github.com/MrEthical07/goGate/password"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// ErrNotEnrolled is returned when a principal has no second-factor secret.
var ErrNotEnrolled = errors.New("passkey not enrolled")

// Config controls TOTP parameters. Zero values take RFC 6238 defaults.
type Config struct {
	Issuer string
	Period uint
	Digits int
	// Skew is the number of periods accepted on either side of now.
	Skew uint
}

// Enrollment is the material returned when a second factor is provisioned.
type Enrollment struct {
	Kind credential.PasskeyKind
	// Secret is what gets stored on the principal: a base32 TOTP seed or a
	// PIN hash.
	Secret string
	// URI is the otpauth:// provisioning URI; empty for PIN enrollment.
	URI string
}

// PINHasher hashes and verifies static PIN codes.
type PINHasher interface {
	HashCode(ctx context.Context, code string) (string, error)
	Verify(ctx context.Context, secret, encoded string) (password.VerifyResult, error)
}

// Verifier checks second-factor codes.
type Verifier struct {
	cfg  Config
	opts totp.ValidateOpts
	pins PINHasher
}

// NewVerifier returns a Verifier. pins may be nil when PIN mode is unused.
func NewVerifier(cfg Config, pins PINHasher) (*Verifier, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = "goGate"
	}
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.Digits != 6 && cfg.Digits != 8 {
		return nil, errors.New("passkey digits must be 6 or 8")
	}
	if cfg.Skew > 2 {
		return nil, errors.New("passkey skew must be <= 2")
	}
	return &Verifier{
		cfg:  cfg,
		pins: pins,
		opts: totp.ValidateOpts{
			Period:    cfg.Period,
			Skew:      cfg.Skew,
			Digits:    otp.Digits(cfg.Digits),
			Algorithm: otp.AlgorithmSHA1,
		},
	}, nil
}

// EnrollTOTP creates a fresh TOTP seed for accountName.
func (v *Verifier) EnrollTOTP(accountName string) (Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.cfg.Issuer,
		AccountName: accountName,
		Period:      v.cfg.Period,
		Digits:      otp.Digits(v.cfg.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, err
	}
	return Enrollment{Kind: credential.PasskeyTOTP, Secret: key.Secret(), URI: key.URL()}, nil
}

// EnrollPIN hashes a static numeric PIN of exactly the configured digit count.
func (v *Verifier) EnrollPIN(ctx context.Context, pin string) (Enrollment, error) {
	if v.pins == nil {
		return Enrollment{}, errors.New("pin hasher not configured")
	}
	if !numeric(pin) || len(pin) != v.cfg.Digits {
		return Enrollment{}, fmt.Errorf("pin must be exactly %d digits", v.cfg.Digits)
	}
	hash, err := v.pins.HashCode(ctx, pin)
	if err != nil {
		return Enrollment{}, err
	}
	return Enrollment{Kind: credential.PasskeyPIN, Secret: hash}, nil
}

// Verify checks code against the enrolled secret at now. Both modes compare
// in constant time. A malformed code is a mismatch, not an error.
func (v *Verifier) Verify(ctx context.Context, kind credential.PasskeyKind, secret, code string, now time.Time) (bool, error) {
	if secret == "" {
		return false, ErrNotEnrolled
	}
	code = strings.TrimSpace(code)
	if !numeric(code) {
		return false, nil
	}

	switch kind {
	case credential.PasskeyTOTP, "":
		if len(code) != v.cfg.Digits {
			return false, nil
		}
		ok, err := totp.ValidateCustom(code, secret, now, v.opts)
		if err != nil {
			return false, fmt.Errorf("totp: %w", err)
		}
		return ok, nil
	case credential.PasskeyPIN:
		if v.pins == nil {
			return false, errors.New("pin hasher not configured")
		}
		if len(code) != v.cfg.Digits {
			return false, nil
		}
		res, err := v.pins.Verify(ctx, code, secret)
		if err != nil {
			return false, err
		}
		return res.Match, nil
	default:
		return false, fmt.Errorf("unknown passkey kind %q", kind)
	}
}

// Code returns the TOTP code for secret at t. It is used by provisioning
// tooling and tests; verification never calls it.
func (v *Verifier) Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, v.opts)
}

func numeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
