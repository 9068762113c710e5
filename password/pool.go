package password

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent hashing work. Argon2id at the default work factor
// allocates 64 MiB per call; without a bound a burst of sign-ins can exhaust
// memory.
type Pool struct {
	hasher *Argon2
	sem    *semaphore.Weighted
	// dummy is a real hash of a random secret. Verifying against it costs the
	// same as verifying a real principal's hash.
	dummy string
}

// VerifyResult is the outcome of Pool.Verify.
type VerifyResult struct {
	Match bool
	// NeedsUpgrade is set when the stored hash is bcrypt or uses weaker argon2id
	// parameters; callers rehash after a successful match.
	NeedsUpgrade bool
}

// NewPool returns a pool running at most workers hash operations at once.
// workers <= 0 selects runtime.NumCPU().
func NewPool(hasher *Argon2, workers int) (*Pool, error) {
	if hasher == nil {
		return nil, errors.New("hasher is required")
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(hex.EncodeToString(seed))
	if err != nil {
		return nil, err
	}

	return &Pool{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(workers)),
		dummy:  dummy,
	}, nil
}

// Hash produces a new argon2id hash once a worker slot is free.
func (p *Pool) Hash(ctx context.Context, secret string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)
	return p.hasher.Hash(secret)
}

// HashCode hashes a short numeric code such as a static PIN. It skips the
// MinLength check; callers enforce their own format.
func (p *Pool) HashCode(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", ErrSecretTooShort
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)
	return p.hasher.hash(code)
}

// Verify checks secret against encoded, which may be argon2id or bcrypt.
func (p *Pool) Verify(ctx context.Context, secret, encoded string) (VerifyResult, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return VerifyResult{}, err
	}
	defer p.sem.Release(1)

	if IsBcrypt(encoded) {
		ok, err := verifyBcrypt(secret, encoded)
		return VerifyResult{Match: ok, NeedsUpgrade: ok}, err
	}

	ok, err := p.hasher.Verify(secret, encoded)
	if err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{Match: ok, NeedsUpgrade: ok && p.hasher.NeedsUpgrade(encoded)}, nil
}

// DummyVerify spends the same work as a real verification and always fails.
// Sign-in uses it for unknown identifiers so response timing does not reveal
// whether the identifier exists.
func (p *Pool) DummyVerify(ctx context.Context, secret string) error {
	_, err := p.Verify(ctx, secret, p.dummy)
	return err
}
