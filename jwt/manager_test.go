package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newEdManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	m, err := NewManager(Config{
		TTL:           5 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "gogate",
		Audience:      "gogate-api",
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestIssueAndParse(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_760_000_000, 0)}
	m := newEdManager(t, clock)

	token, claims, err := m.Issue("p-1", "s-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if claims.ID == "" {
		t.Fatal("expected jti")
	}

	parsed, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Subject != "p-1" || parsed.SID != "s-1" || parsed.ID != claims.ID {
		t.Fatalf("unexpected claims %+v", parsed)
	}
}

func TestExpiryIsHardBoundary(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_760_000_000, 0)}
	m := newEdManager(t, clock)

	token, claims, err := m.Issue("p-1", "s-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	exp := claims.ExpiresAt.Time

	clock.t = exp.Add(-time.Millisecond)
	if _, err := m.Parse(token); err != nil {
		t.Fatalf("token must be valid at exp-1ms: %v", err)
	}

	clock.t = exp.Add(time.Millisecond)
	if _, err := m.Parse(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("token must be expired at exp+1ms, got %v", err)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newEdManager(t, clock)

	claims := Claims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "p-1",
		Issuer:    "gogate",
		Audience:  gjwt.ClaimStrings{"gogate-api"},
		IssuedAt:  gjwt.NewNumericDate(clock.t),
		ExpiresAt: gjwt.NewNumericDate(clock.t.Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Parse(token); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestParseRejectsForeignIssuerAndTamper(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newEdManager(t, clock)
	other := newEdManager(t, clock)

	token, _, err := other.Issue("p-1", "s-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(token); !errors.Is(err, ErrMalformed) {
		t.Fatalf("token signed by another key must be rejected, got %v", err)
	}

	own, _, err := m.Issue("p-1", "s-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tampered := own[:len(own)-2] + "xx"
	if _, err := m.Parse(tampered); !errors.Is(err, ErrMalformed) {
		t.Fatalf("tampered token must be rejected, got %v", err)
	}
}

func TestHS256RoundTripAndKeyLength(t *testing.T) {
	if _, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short hs256 secret to be rejected")
	}
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, err := m.Issue("p-1", "s-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(token); err != nil {
		t.Fatalf("parse: %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Config{SigningMethod: MethodHS256}); err == nil {
		t.Fatal("expected zero TTL to be rejected")
	}
	if _, err := NewManager(Config{TTL: time.Minute, SigningMethod: "rs512"}); err == nil {
		t.Fatal("expected unsupported method to be rejected")
	}
	if _, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519}); err == nil {
		t.Fatal("expected missing ed25519 public key to be rejected")
	}
}
