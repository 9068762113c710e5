package credential

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	attemptStatusNotFound      int64 = -1
	attemptStatusAlreadyLocked int64 = 0
	attemptStatusLocked        int64 = 1
	attemptStatusCounted       int64 = 2
	attemptStatusReset         int64 = 3
)

// KEYS[1] principal hash
// ARGV[1] now ms, ARGV[2] threshold, ARGV[3] locked_until to apply (ms)
const recordFailureScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {-1, 0, 0}
end
local now = tonumber(ARGV[1])
local locked = tonumber(redis.call("HGET", KEYS[1], "locked_until") or "0")
local failed = tonumber(redis.call("HGET", KEYS[1], "failed") or "0")
if locked > now then
  return {0, failed, locked}
end
failed = redis.call("HINCRBY", KEYS[1], "failed", 1)
if failed >= tonumber(ARGV[2]) then
  redis.call("HSET", KEYS[1], "failed", "0", "locked_until", ARGV[3])
  return {1, 0, tonumber(ARGV[3])}
end
return {2, failed, locked}
`

// KEYS[1] principal hash
// ARGV[1] now ms
const recordSuccessScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {-1, 0, 0}
end
local now = tonumber(ARGV[1])
local locked = tonumber(redis.call("HGET", KEYS[1], "locked_until") or "0")
if locked > now then
  local failed = tonumber(redis.call("HGET", KEYS[1], "failed") or "0")
  return {0, failed, locked}
end
redis.call("HSET", KEYS[1], "failed", "0")
return {3, 0, locked}
`

// KEYS[1] identifier index, KEYS[2] principal hash
// ARGV[1] principal id, ARGV[2..] field/value pairs
const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 or redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
local fields = {}
for i = 2, #ARGV do
  fields[#fields + 1] = ARGV[i]
end
redis.call("HSET", KEYS[2], unpack(fields))
return 1
`

var (
	recordFailureLua = redis.NewScript(recordFailureScript)
	recordSuccessLua = redis.NewScript(recordSuccessScript)
	createLua        = redis.NewScript(createScript)
)

// RedisStore keeps principals in Redis hashes keyed by id, with a string index
// from identifier to id.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a Redis-backed principal store. An empty prefix
// defaults to "gg".
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gg"
	}
	return &RedisStore{redis: rdb, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":principal:" + id
}

func (s *RedisStore) identKey(identifier string) string {
	return s.prefix + ":ident:" + identifier
}

// Create inserts p. It fails with ErrExists when either the id or the
// identifier is already registered.
func (s *RedisStore) Create(ctx context.Context, p *Principal) error {
	if p == nil || p.ID == "" || p.Identifier == "" {
		return errors.New("principal id and identifier required")
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	kind := p.PasskeyKind
	if kind == "" {
		kind = PasskeyTOTP
	}

	res, err := createLua.Run(ctx, s.redis,
		[]string{s.identKey(p.Identifier), s.key(p.ID)},
		p.ID,
		"id", p.ID,
		"identifier", p.Identifier,
		"label", p.Label,
		"secret_hash", p.SecretHash,
		"failed", strconv.Itoa(p.FailedAttempts),
		"locked_until", strconv.FormatInt(millisOrZero(p.LockedUntil), 10),
		"passkey_kind", string(kind),
		"passkey_secret", p.PasskeySecret,
		"created_at", strconv.FormatInt(created.UnixMilli(), 10),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res == 0 {
		return ErrExists
	}
	return nil
}

// GetByID loads a principal by id.
func (s *RedisStore) GetByID(ctx context.Context, id string) (*Principal, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return principalFromHash(fields)
}

// GetByIdentifier loads a principal by its sign-in identifier.
func (s *RedisStore) GetByIdentifier(ctx context.Context, identifier string) (*Principal, error) {
	id, err := s.redis.Get(ctx, s.identKey(identifier)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.GetByID(ctx, id)
}

// RecordFailedAttempt increments the failure counter in one Lua call. When
// the counter reaches policy.Threshold the lock is set to now+policy.Duration
// and the counter is reset. A principal already locked at now is left as is.
func (s *RedisStore) RecordFailedAttempt(ctx context.Context, id string, policy LockoutPolicy, now time.Time) (AttemptResult, error) {
	until := now.Add(policy.Duration).UnixMilli()
	res, err := recordFailureLua.Run(ctx, s.redis, []string{s.key(id)},
		now.UnixMilli(), policy.Threshold, until,
	).Int64Slice()
	if err != nil {
		return AttemptResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return attemptFromScript(res)
}

// RecordSuccessfulAttempt resets the failure counter unless a lock is in
// force at now, in which case the lock is reported and nothing changes.
func (s *RedisStore) RecordSuccessfulAttempt(ctx context.Context, id string, now time.Time) (AttemptResult, error) {
	res, err := recordSuccessLua.Run(ctx, s.redis, []string{s.key(id)}, now.UnixMilli()).Int64Slice()
	if err != nil {
		return AttemptResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return attemptFromScript(res)
}

// Unlock clears the lock and the failure counter.
func (s *RedisStore) Unlock(ctx context.Context, id string) error {
	n, err := s.redis.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := s.redis.HSet(ctx, s.key(id), "failed", "0", "locked_until", "0").Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// UpdateSecretHash replaces the stored secret hash.
func (s *RedisStore) UpdateSecretHash(ctx context.Context, id, hash string) error {
	n, err := s.redis.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := s.redis.HSet(ctx, s.key(id), "secret_hash", hash).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func attemptFromScript(res []int64) (AttemptResult, error) {
	if len(res) != 3 {
		return AttemptResult{}, fmt.Errorf("%w: invalid attempt script response", ErrUnavailable)
	}
	out := AttemptResult{
		FailedAttempts: int(res[1]),
		LockedUntil:    timeOrZero(res[2]),
	}
	switch res[0] {
	case attemptStatusNotFound:
		return AttemptResult{}, ErrNotFound
	case attemptStatusAlreadyLocked:
		out.Locked = true
	case attemptStatusLocked:
		out.Locked = true
		out.JustLocked = true
	case attemptStatusCounted, attemptStatusReset:
	default:
		return AttemptResult{}, fmt.Errorf("%w: unknown attempt script status", ErrUnavailable)
	}
	return out, nil
}

func principalFromHash(f map[string]string) (*Principal, error) {
	failed, err := strconv.Atoi(f["failed"])
	if err != nil {
		return nil, fmt.Errorf("%w: bad failed counter: %v", ErrUnavailable, err)
	}
	locked, err := strconv.ParseInt(f["locked_until"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad locked_until: %v", ErrUnavailable, err)
	}
	created, _ := strconv.ParseInt(f["created_at"], 10, 64)

	return &Principal{
		ID:             f["id"],
		Identifier:     f["identifier"],
		Label:          f["label"],
		SecretHash:     f["secret_hash"],
		FailedAttempts: failed,
		LockedUntil:    timeOrZero(locked),
		PasskeyKind:    PasskeyKind(f["passkey_kind"]),
		PasskeySecret:  f["passkey_secret"],
		CreatedAt:      timeOrZero(created),
	}, nil
}
