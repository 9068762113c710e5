package goGate_test

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	goGate "github.com/MrEthical07/goGate"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// Example walks one principal through sign-in, the passkey step and a
// guarded request.
func Example() {
	mr, _ := miniredis.Run()
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	pub, priv, _ := ed25519.GenerateKey(nil)
	cfg := goGate.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := goGate.New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer engine.Close()

	ctx := context.Background()
	p, _ := engine.ProvisionPrincipal(ctx, goGate.ProvisionRequest{
		Identifier: "nightshift",
		Label:      "Night shift",
		Secret:     "correct horse battery",
		PIN:        "482913",
	})

	res, _ := engine.SignIn(ctx, "nightshift", "correct horse battery")
	fmt.Println(res.State)

	state, _ := engine.VerifyPasskey(ctx, p.PrincipalID, "482913", res.SessionID)
	fmt.Println(state)

	tok, _ := engine.IssueAccessToken(ctx, res.SessionID)
	auth, _ := engine.Authenticate(ctx, tok.Token)
	fmt.Println(auth.PrincipalID == p.PrincipalID)

	_, err = engine.SignIn(ctx, "nightshift", "wrong")
	fmt.Println(goGate.KindOf(err), errors.Is(err, goGate.ErrInvalidCredentials))
	// Output:
	// FirstFactorOnly
	// FullyAuthenticated
	// true
	// InvalidCredentials true
}
