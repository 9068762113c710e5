package goGate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func BenchmarkAuthenticateJWTOnly(b *testing.B) {
	benchmarkAuthenticate(b, ModeJWTOnly)
}

func BenchmarkAuthenticateStrict(b *testing.B) {
	benchmarkAuthenticate(b, ModeStrict)
}

func benchmarkAuthenticate(b *testing.B, mode ValidationMode) {
	engine, token := newBenchmarkEngine(b, mode)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Authenticate(ctx, token); err != nil {
			b.Fatalf("authenticate failed: %v", err)
		}
	}
}

func BenchmarkIssueAccessToken(b *testing.B) {
	engine, token := newBenchmarkEngine(b, ModeJWTOnly)
	ctx := context.Background()
	auth, err := engine.Authenticate(ctx, token)
	if err != nil {
		b.Fatalf("authenticate failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.IssueAccessToken(ctx, auth.SessionID); err != nil {
			b.Fatalf("issue failed: %v", err)
		}
	}
}

func BenchmarkSignIn(b *testing.B) {
	engine, _ := newBenchmarkEngine(b, ModeJWTOnly)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := engine.SignIn(ctx, "alice", testSecret)
		if err != nil {
			b.Fatalf("sign in failed: %v", err)
		}
		_ = engine.Logout(ctx, res.Principal.ID, res.SessionID)
	}
}

// newBenchmarkEngine provisions alice with a PIN passkey, signs her in fully
// and returns an access token.
func newBenchmarkEngine(b *testing.B, mode ValidationMode) (*Engine, string) {
	b.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis.Run failed: %v", err)
	}
	b.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b.Cleanup(func() { _ = rdb.Close() })

	pub, priv := testKeys(b)
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.JWT.AccessTTL = 10 * time.Minute
	cfg.ValidationMode = mode
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = false
	cfg.Audit.Enabled = false
	cfg.Throttle.Enabled = false

	engine, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	b.Cleanup(engine.Close)

	ctx := context.Background()
	p, err := engine.ProvisionPrincipal(ctx, ProvisionRequest{Identifier: "alice", Secret: testSecret, PIN: "482160"})
	if err != nil {
		b.Fatalf("provision failed: %v", err)
	}
	res, err := engine.SignIn(ctx, "alice", testSecret)
	if err != nil {
		b.Fatalf("sign in failed: %v", err)
	}
	if _, err := engine.VerifyPasskey(ctx, p.PrincipalID, "482160", res.SessionID); err != nil {
		b.Fatalf("verify passkey failed: %v", err)
	}
	tok, err := engine.IssueAccessToken(ctx, res.SessionID)
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}
	return engine, tok.Token
}
