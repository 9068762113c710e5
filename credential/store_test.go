package credential

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type principalStore interface {
	Create(ctx context.Context, p *Principal) error
	GetByID(ctx context.Context, id string) (*Principal, error)
	GetByIdentifier(ctx context.Context, identifier string) (*Principal, error)
	RecordFailedAttempt(ctx context.Context, id string, policy LockoutPolicy, now time.Time) (AttemptResult, error)
	RecordSuccessfulAttempt(ctx context.Context, id string, now time.Time) (AttemptResult, error)
	Unlock(ctx context.Context, id string) error
	UpdateSecretHash(ctx context.Context, id, hash string) error
}

func backends(t *testing.T) map[string]func(t *testing.T) principalStore {
	t.Helper()
	return map[string]func(t *testing.T) principalStore{
		"redis": func(t *testing.T) principalStore {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return NewRedisStore(rdb, "test")
		},
		"sqlite": func(t *testing.T) principalStore {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "principals.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func seed(t *testing.T, s principalStore) *Principal {
	t.Helper()
	p := &Principal{
		ID:            "p-alice",
		Identifier:    "alice",
		Label:         "Alice",
		SecretHash:    "$argon2id$fake",
		PasskeyKind:   PasskeyTOTP,
		PasskeySecret: "JBSWY3DPEHPK3PXP",
	}
	require.NoError(t, s.Create(context.Background(), p))
	return p
}

func TestStoreCreateAndLookup(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			p := seed(t, s)

			byID, err := s.GetByID(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, "alice", byID.Identifier)
			assert.Equal(t, "Alice", byID.Label)
			assert.Equal(t, PasskeyTOTP, byID.PasskeyKind)
			assert.True(t, byID.LockedUntil.IsZero())

			byIdent, err := s.GetByIdentifier(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, p.ID, byIdent.ID)

			_, err = s.GetByIdentifier(ctx, "bob")
			assert.ErrorIs(t, err, ErrNotFound)

			dup := *p
			dup.ID = "p-other"
			assert.ErrorIs(t, s.Create(ctx, &dup), ErrExists)
		})
	}
}

func TestStoreLockoutAfterThreshold(t *testing.T) {
	policy := LockoutPolicy{Threshold: 3, Duration: 15 * time.Minute}
	now := time.UnixMilli(1_760_000_000_000)

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			p := seed(t, s)

			for i := 1; i < policy.Threshold; i++ {
				res, err := s.RecordFailedAttempt(ctx, p.ID, policy, now)
				require.NoError(t, err)
				assert.Equal(t, i, res.FailedAttempts)
				assert.False(t, res.Locked)
			}

			res, err := s.RecordFailedAttempt(ctx, p.ID, policy, now)
			require.NoError(t, err)
			assert.True(t, res.Locked)
			assert.True(t, res.JustLocked)
			assert.Equal(t, 0, res.FailedAttempts, "counter resets when the lock is applied")
			assert.Equal(t, now.Add(policy.Duration).UnixMilli(), res.LockedUntil.UnixMilli())

			stored, err := s.GetByID(ctx, p.ID)
			require.NoError(t, err)
			assert.True(t, stored.LockedAt(now))
			assert.False(t, stored.LockedAt(now.Add(policy.Duration)))

			// Further failures during the lock leave it untouched.
			res, err = s.RecordFailedAttempt(ctx, p.ID, policy, now.Add(time.Minute))
			require.NoError(t, err)
			assert.True(t, res.Locked)
			assert.False(t, res.JustLocked)
			assert.Equal(t, now.Add(policy.Duration).UnixMilli(), res.LockedUntil.UnixMilli())

			// Success during the lock is refused by the store.
			res, err = s.RecordSuccessfulAttempt(ctx, p.ID, now.Add(time.Minute))
			require.NoError(t, err)
			assert.True(t, res.Locked)

			// After expiry counting starts fresh.
			later := now.Add(policy.Duration + time.Second)
			res, err = s.RecordFailedAttempt(ctx, p.ID, policy, later)
			require.NoError(t, err)
			assert.False(t, res.Locked)
			assert.Equal(t, 1, res.FailedAttempts)
		})
	}
}

func TestStoreSuccessResetsCounter(t *testing.T) {
	policy := LockoutPolicy{Threshold: 5, Duration: time.Minute}
	now := time.Now()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			p := seed(t, s)

			for i := 0; i < 2; i++ {
				_, err := s.RecordFailedAttempt(ctx, p.ID, policy, now)
				require.NoError(t, err)
			}
			res, err := s.RecordSuccessfulAttempt(ctx, p.ID, now)
			require.NoError(t, err)
			assert.False(t, res.Locked)
			assert.Equal(t, 0, res.FailedAttempts)

			stored, err := s.GetByID(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, 0, stored.FailedAttempts)
		})
	}
}

func TestStoreConcurrentFailuresLockExactlyOnce(t *testing.T) {
	policy := LockoutPolicy{Threshold: 5, Duration: time.Hour}
	now := time.Now()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			p := seed(t, s)

			var (
				wg         sync.WaitGroup
				mu         sync.Mutex
				justLocked int
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := s.RecordFailedAttempt(ctx, p.ID, policy, now)
					if err != nil {
						t.Errorf("record failure: %v", err)
						return
					}
					if res.JustLocked {
						mu.Lock()
						justLocked++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, justLocked)
			stored, err := s.GetByID(ctx, p.ID)
			require.NoError(t, err)
			assert.True(t, stored.LockedAt(now))
		})
	}
}

func TestStoreRepeatedFailureAtLockInstantIsNotJustLocked(t *testing.T) {
	policy := LockoutPolicy{Threshold: 1, Duration: time.Hour}
	now := time.UnixMilli(1_760_000_000_000)

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			p := seed(t, s)

			first, err := s.RecordFailedAttempt(ctx, p.ID, policy, now)
			require.NoError(t, err)
			assert.True(t, first.Locked)
			assert.True(t, first.JustLocked)

			second, err := s.RecordFailedAttempt(ctx, p.ID, policy, now)
			require.NoError(t, err)
			assert.True(t, second.Locked)
			assert.False(t, second.JustLocked, "only the transition reports JustLocked")
			assert.Equal(t, first.LockedUntil.UnixMilli(), second.LockedUntil.UnixMilli())
			assert.Equal(t, 0, second.FailedAttempts)

			_, err = s.RecordFailedAttempt(ctx, "p-missing", policy, now)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreUnlockAndUpdateSecret(t *testing.T) {
	policy := LockoutPolicy{Threshold: 1, Duration: time.Hour}
	now := time.Now()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			p := seed(t, s)

			res, err := s.RecordFailedAttempt(ctx, p.ID, policy, now)
			require.NoError(t, err)
			require.True(t, res.Locked)

			require.NoError(t, s.Unlock(ctx, p.ID))
			stored, err := s.GetByID(ctx, p.ID)
			require.NoError(t, err)
			assert.False(t, stored.LockedAt(now))
			assert.Equal(t, 0, stored.FailedAttempts)

			require.NoError(t, s.UpdateSecretHash(ctx, p.ID, "$argon2id$new"))
			stored, err = s.GetByID(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, "$argon2id$new", stored.SecretHash)

			assert.ErrorIs(t, s.Unlock(ctx, "missing"), ErrNotFound)
			_, err = s.RecordFailedAttempt(ctx, "missing", policy, now)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestLockoutPolicyValidate(t *testing.T) {
	assert.NoError(t, LockoutPolicy{Threshold: 5, Duration: time.Minute}.Validate())
	assert.Error(t, LockoutPolicy{Threshold: 0, Duration: time.Minute}.Validate())
	assert.Error(t, LockoutPolicy{Threshold: 5}.Validate())
}
