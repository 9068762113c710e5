package password

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   8,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	hash, err := hasher.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("correct horse", hash)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = hasher.Verify("wrong horse!", hash)
	if err != nil || ok {
		t.Fatalf("expected verification to fail, ok=%v err=%v", ok, err)
	}
}

func TestHashRejectsShortSecret(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	if _, err := hasher.Hash("short"); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("expected ErrSecretTooShort, got %v", err)
	}
}

func TestConfigValidateBounds(t *testing.T) {
	cases := map[string]func(*Config){
		"memory":      func(c *Config) { c.Memory = 1024 },
		"time":        func(c *Config) { c.Time = 0 },
		"parallelism": func(c *Config) { c.Parallelism = 0 },
		"salt":        func(c *Config) { c.SaltLength = 8 },
		"key":         func(c *Config) { c.KeyLength = 8 },
		"min length":  func(c *Config) { c.MinLength = 0 },
	}
	for name, mutate := range cases {
		cfg := fastConfig()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestVerifyRejectsMalformedPHC(t *testing.T) {
	hasher, _ := NewArgon2(fastConfig())
	for _, bad := range []string{
		"",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$short$aGFzaA",
	} {
		if _, err := hasher.Verify("whatever1", bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak, _ := NewArgon2(fastConfig())
	hash, err := weak.Hash("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	stronger := fastConfig()
	stronger.Time = 2
	strong, _ := NewArgon2(stronger)

	if weak.NeedsUpgrade(hash) {
		t.Fatal("same parameters must not need upgrade")
	}
	if !strong.NeedsUpgrade(hash) {
		t.Fatal("higher time cost must require upgrade")
	}
	if !strong.NeedsUpgrade("$2a$10$abcdefghijklmnopqrstuu") {
		t.Fatal("bcrypt hashes must require upgrade")
	}
}

func TestPoolVerifiesBcryptAndFlagsUpgrade(t *testing.T) {
	hasher, _ := NewArgon2(fastConfig())
	pool, err := NewPool(hasher, 2)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	legacy, err := HashBcrypt("legacy-secret", 4)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	res, err := pool.Verify(context.Background(), "legacy-secret", legacy)
	if err != nil || !res.Match || !res.NeedsUpgrade {
		t.Fatalf("expected bcrypt match with upgrade flag, got %+v err=%v", res, err)
	}
	res, err = pool.Verify(context.Background(), "not-the-secret", legacy)
	if err != nil || res.Match || res.NeedsUpgrade {
		t.Fatalf("expected bcrypt mismatch without upgrade flag, got %+v err=%v", res, err)
	}
}

func TestPoolDummyVerifyAndCancellation(t *testing.T) {
	hasher, _ := NewArgon2(fastConfig())
	pool, err := NewPool(hasher, 1)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if err := pool.DummyVerify(context.Background(), "anything"); err != nil {
		t.Fatalf("dummy verify: %v", err)
	}

	// Hold the only slot, then ask with an already expired context.
	if err := pool.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer pool.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := pool.Hash(ctx, "correct horse"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while pool is saturated, got %v", err)
	}
}
