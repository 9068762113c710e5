// Package credential stores principals and applies the lockout counter.
//
// Two backends are provided: [RedisStore] (hash per principal, Lua for the
// attempt counters) and [SQLiteStore] (modernc.org/sqlite, one UPDATE ... RETURNING
// statement per attempt). Both make RecordFailedAttempt and
// RecordSuccessfulAttempt a single atomic store operation, so concurrent
// sign-ins for one principal never lose a count and a lock set by one request
// is seen by every later one.
package credential
