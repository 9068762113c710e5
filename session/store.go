package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no session exists under the given id.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when the session exists but its ExpiresAt has passed.
	ErrExpired = errors.New("session expired")
	// ErrPrincipalMismatch is returned when a session is presented for a principal
	// that does not own it.
	ErrPrincipalMismatch = errors.New("session belongs to another principal")
	// ErrCorrupt is returned when a stored blob cannot be parsed.
	ErrCorrupt = errors.New("session blob corrupt")
	// ErrRedisUnavailable wraps Redis I/O failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const (
	markStatusNotFound        int64 = 0
	markStatusExpired         int64 = 1
	markStatusMismatch        int64 = 2
	markStatusVerified        int64 = 3
	markStatusAlreadyVerified int64 = 4
	markStatusInvalidBlob     int64 = 5
)

const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

const markVerifiedScript = `
local function read_be64(s, i)
  local b1 = string.byte(s, i)
  local b2 = string.byte(s, i + 1)
  local b3 = string.byte(s, i + 2)
  local b4 = string.byte(s, i + 3)
  local b5 = string.byte(s, i + 4)
  local b6 = string.byte(s, i + 5)
  local b7 = string.byte(s, i + 6)
  local b8 = string.byte(s, i + 7)
  if not b8 then
    return nil
  end
  return ((((((((b1 * 256) + b2) * 256 + b3) * 256 + b4) * 256 + b5) * 256 + b6) * 256 + b7) * 256 + b8)
end

local function parse_session(data)
  local version = string.byte(data, 1)
  if version ~= 1 then
    return nil
  end
  local principal_len = string.byte(data, 2)
  if not principal_len or principal_len == 0 then
    return nil
  end
  if #data ~= 19 + principal_len then
    return nil
  end
  local flags_offset = 3 + principal_len
  return {
    principal_id = string.sub(data, 3, 2 + principal_len),
    flags_offset = flags_offset,
    flags = string.byte(data, flags_offset),
    expires_at = read_be64(data, flags_offset + 9)
  }
end

local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end

local parsed = parse_session(data)
if not parsed or not parsed.expires_at then
  return {5}
end

if parsed.expires_at <= tonumber(ARGV[2]) then
  return {1}
end

if parsed.principal_id ~= ARGV[1] then
  return {2}
end

if parsed.flags % 2 == 1 then
  return {4, data}
end

local updated = string.sub(data, 1, parsed.flags_offset - 1) ..
  string.char(parsed.flags + 1) ..
  string.sub(data, parsed.flags_offset + 1)

local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("SET", KEYS[1], updated, "PX", ttl)
elseif ttl == -1 then
  redis.call("SET", KEYS[1], updated)
else
  return {0}
end

return {3, updated}
`

var markVerifiedLua = redis.NewScript(markVerifiedScript)

// Store is a Redis-backed session store with a per-principal index used by
// logout-all and the expiry sweep.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace; an empty prefix defaults to "gg".
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "gg"
	}
	return &Store{redis: rdb, prefix: prefix}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) principalKey(principalID string) string {
	return s.prefix + ":p:" + principalID
}

// Save persists sess with a Redis TTL equal to its lifetime (ExpiresAt - CreatedAt).
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.SessionID == "" {
		return errors.New("session id required")
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	ttl := time.Duration(sess.ExpiresAt-sess.CreatedAt) * time.Millisecond
	if ttl <= 0 {
		return ErrExpired
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, s.principalKey(sess.PrincipalID), sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads a session. Expiry is not evaluated here; callers compare
// ExpiresAt against their own clock.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, errors.Join(ErrCorrupt, err)
	}
	sess.SessionID = sessionID
	return sess, nil
}

// MarkSecondFactorVerified atomically sets the verified flag on the session,
// provided it exists, belongs to principalID and has not expired at now.
// Marking an already verified session succeeds and returns it unchanged.
func (s *Store) MarkSecondFactorVerified(ctx context.Context, sessionID, principalID string, now time.Time) (*Session, error) {
	result, err := markVerifiedLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		principalID,
		now.UnixMilli(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid verify script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid verify script status", ErrRedisUnavailable)
	}

	switch code {
	case markStatusNotFound:
		return nil, ErrNotFound
	case markStatusExpired:
		return nil, ErrExpired
	case markStatusMismatch:
		return nil, ErrPrincipalMismatch
	case markStatusInvalidBlob:
		return nil, ErrCorrupt
	case markStatusVerified, markStatusAlreadyVerified:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing session payload", ErrRedisUnavailable)
		}
		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid session payload", ErrRedisUnavailable)
		}
		sess, decErr := Decode(blob)
		if decErr != nil {
			return nil, errors.Join(ErrCorrupt, decErr)
		}
		sess.SessionID = sessionID
		return sess, nil
	default:
		return nil, fmt.Errorf("%w: unknown verify script status", ErrRedisUnavailable)
	}
}

// Delete removes a session and its index entry. Deleting a missing session is
// not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if errors.Is(err, ErrCorrupt) {
			if delErr := s.redis.Del(ctx, s.key(sessionID)).Err(); delErr != nil {
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, delErr)
			}
			return nil
		}
		return err
	}
	return s.deleteSessionAndIndex(ctx, sess.PrincipalID, sessionID)
}

// DeleteAllForPrincipal removes every session indexed for principalID and
// returns how many existed.
//
// The index is read before the delete, so a session created concurrently with
// this call can survive it. Logout-all callers that need a hard cut can call
// it twice.
func (s *Store) DeleteAllForPrincipal(ctx context.Context, principalID string) (int, error) {
	indexKey := s.principalKey(principalID)

	sessionIDs, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(sessionIDs) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(sessionIDs))
	for _, sid := range sessionIDs {
		keys = append(keys, s.key(sid))
	}

	var delCmd *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		delCmd = pipe.Del(ctx, keys...)
		pipe.SRem(ctx, indexKey, toInterfaces(sessionIDs)...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(delCmd.Val()), nil
}

// ActiveSessionIDs returns the ids indexed for principalID. The index may
// briefly contain ids whose keys already expired; SweepExpired prunes them.
func (s *Store) ActiveSessionIDs(ctx context.Context, principalID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.principalKey(principalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// SweepExpired walks every principal index, deletes sessions whose ExpiresAt
// is at or before now and prunes index entries whose keys are gone. It returns
// the number of index entries removed.
//
// This is an O(sessions) maintenance operation and must not run on request paths.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	pattern := s.prefix + ":p:*"
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		for _, indexKey := range keys {
			n, err := s.sweepIndex(ctx, indexKey, now)
			removed += n
			if err != nil {
				return removed, err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

func (s *Store) sweepIndex(ctx context.Context, indexKey string, now time.Time) (int, error) {
	ids, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, sid := range ids {
		cmds[i] = pipe.Get(ctx, s.key(sid))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	stale := make([]string, 0)
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				stale = append(stale, ids[i])
				continue
			}
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}
		sess, decErr := Decode(data)
		if decErr != nil || sess.ExpiredAt(now) {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	staleKeys := make([]string, len(stale))
	for i, sid := range stale {
		staleKeys[i] = s.key(sid)
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, staleKeys...)
		pipe.SRem(ctx, indexKey, toInterfaces(stale)...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return len(stale), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) deleteSessionAndIndex(ctx context.Context, principalID, sessionID string) error {
	_, err := deleteSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID), s.principalKey(principalID)},
		sessionID,
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
