package goGate

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestListSessionsOldestFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	alice := provision(t, env, "alice")
	provision(t, env, "bob")

	first := fullyAuthenticate(t, env, "alice", alice)
	env.clock.Advance(time.Minute)
	second, err := env.engine.SignIn(ctx, "alice", testSecret)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if _, err := env.engine.SignIn(ctx, "bob", testSecret); err != nil {
		t.Fatalf("sign in bob: %v", err)
	}

	list, err := env.engine.ListSessions(ctx, alice.PrincipalID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	if list[0].SessionID != first || list[1].SessionID != second.SessionID {
		t.Fatalf("unexpected order: %+v", list)
	}
	if !list[0].SecondFactorVerified || list[1].SecondFactorVerified {
		t.Fatalf("unexpected verification flags: %+v", list)
	}
	if want := env.clock.Now().Add(-time.Minute).UTC(); !list[0].CreatedAt.Equal(want) {
		t.Fatalf("CreatedAt = %v, want %v", list[0].CreatedAt, want)
	}
	if got := list[0].ExpiresAt.Sub(list[0].CreatedAt); got != env.engine.Config().Session.Lifetime {
		t.Fatalf("lifetime = %v", got)
	}
}

func TestListSessionsSkipsEndedSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	alice := provision(t, env, "alice")

	first := fullyAuthenticate(t, env, "alice", alice)
	second := fullyAuthenticate(t, env, "alice", alice)
	if err := env.engine.Logout(ctx, alice.PrincipalID, first); err != nil {
		t.Fatalf("logout: %v", err)
	}

	list, err := env.engine.ListSessions(ctx, alice.PrincipalID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].SessionID != second {
		t.Fatalf("expected only %s, got %+v", second, list)
	}

	env.clock.Advance(env.engine.Config().Session.Lifetime)
	list, err = env.engine.ListSessions(ctx, alice.PrincipalID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no live sessions at expiry, got %+v", list)
	}
}

func TestListSessionsUnknownPrincipal(t *testing.T) {
	env := newTestEnv(t, nil)
	list, err := env.engine.ListSessions(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %+v", list)
	}
	if _, err := env.engine.ListSessions(context.Background(), ""); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	if h := env.engine.Health(context.Background()); !h.StoreAvailable {
		t.Fatalf("expected store available, got %+v", h)
	}
	env.redis.Close()
	if h := env.engine.Health(context.Background()); h.StoreAvailable {
		t.Fatalf("expected store unavailable, got %+v", h)
	}
}

func TestSecurityReport(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.ValidationMode = ModeStrict
		c.Throttle.Enabled = false
	})
	r := env.engine.SecurityReport()

	if r.SigningAlgorithm != "ed25519" || r.ValidationMode != "strict" || !r.Revocation {
		t.Fatalf("unexpected signing/validation: %+v", r)
	}
	if r.ThrottleActive {
		t.Fatal("throttle reported active while disabled")
	}
	if !r.LockoutActive || !r.AuditActive {
		t.Fatalf("expected lockout and audit active: %+v", r)
	}
	if r.Argon2.Memory != 8*1024 || r.Argon2.Parallelism != 1 {
		t.Fatalf("unexpected argon2 report: %+v", r.Argon2)
	}
	cfg := env.engine.Config()
	if want := cfg.Lint().Codes(); !reflect.DeepEqual(r.Warnings, want) {
		t.Fatalf("warnings = %v, want %v", r.Warnings, want)
	}

	var nilEngine *Engine
	if got := nilEngine.SecurityReport(); got.SigningAlgorithm != "" {
		t.Fatalf("expected zero report, got %+v", got)
	}
}
