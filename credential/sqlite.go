package credential

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps principals in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, err
	}
	// One writer keeps UPDATE ... RETURNING serialized without SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create inserts p. It fails with ErrExists on a duplicate id or identifier.
func (s *SQLiteStore) Create(ctx context.Context, p *Principal) error {
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

	_, err := s.db.ExecContext(ctx, `
INSERT INTO principals(id, identifier, label, secret_hash, failed_attempts, locked_until, passkey_kind, passkey_secret, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
`, p.ID, p.Identifier, p.Label, p.SecretHash, p.FailedAttempts, millisOrZero(p.LockedUntil), string(kind), p.PasskeySecret, created.UnixMilli())
	if err != nil {
		if isConstraint(err) {
			return ErrExists
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

const selectPrincipal = `
SELECT id, identifier, label, secret_hash, failed_attempts, locked_until, passkey_kind, passkey_secret, created_at
FROM principals`

// GetByID loads a principal by id.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*Principal, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectPrincipal+" WHERE id = ?", id))
}

// GetByIdentifier loads a principal by its sign-in identifier.
func (s *SQLiteStore) GetByIdentifier(ctx context.Context, identifier string) (*Principal, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectPrincipal+" WHERE identifier = ?", identifier))
}

// RecordFailedAttempt applies one failure. The update only matches a row
// whose lock has lapsed at now, so the caller whose update sets the lock is
// the one that reports JustLocked; a row already locked is read back as is.
func (s *SQLiteStore) RecordFailedAttempt(ctx context.Context, id string, policy LockoutPolicy, now time.Time) (AttemptResult, error) {
	nowMs := now.UnixMilli()
	until := now.Add(policy.Duration).UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AttemptResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	var failed int
	var locked int64
	err = tx.QueryRowContext(ctx, `
UPDATE principals SET
  failed_attempts = CASE WHEN failed_attempts + 1 >= ?2 THEN 0 ELSE failed_attempts + 1 END,
  locked_until    = CASE WHEN failed_attempts + 1 >= ?2 THEN ?3 ELSE locked_until END
WHERE id = ?4 AND locked_until <= ?1
RETURNING failed_attempts, locked_until
`, nowMs, policy.Threshold, until, id).Scan(&failed, &locked)
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return AttemptResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		res := AttemptResult{FailedAttempts: failed, LockedUntil: timeOrZero(locked)}
		if locked > nowMs {
			res.Locked = true
			res.JustLocked = true
		}
		return res, nil
	case !errors.Is(err, sql.ErrNoRows):
		return AttemptResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Either the principal is gone or a lock is in force at now.
	err = tx.QueryRowContext(ctx,
		"SELECT failed_attempts, locked_until FROM principals WHERE id = ?", id,
	).Scan(&failed, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AttemptResult{}, ErrNotFound
		}
		return AttemptResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return AttemptResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return AttemptResult{
		FailedAttempts: failed,
		LockedUntil:    timeOrZero(locked),
		Locked:         true,
	}, nil
}

// RecordSuccessfulAttempt resets the counter in the same statement that
// checks the lock; a lock in force at now wins and nothing changes.
func (s *SQLiteStore) RecordSuccessfulAttempt(ctx context.Context, id string, now time.Time) (AttemptResult, error) {
	nowMs := now.UnixMilli()

	var failed int
	var locked int64
	err := s.db.QueryRowContext(ctx, `
UPDATE principals SET
  failed_attempts = CASE WHEN locked_until > ?1 THEN failed_attempts ELSE 0 END
WHERE id = ?2
RETURNING failed_attempts, locked_until
`, nowMs, id).Scan(&failed, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AttemptResult{}, ErrNotFound
		}
		return AttemptResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return AttemptResult{
		FailedAttempts: failed,
		LockedUntil:    timeOrZero(locked),
		Locked:         locked > nowMs,
	}, nil
}

// Unlock clears the lock and the failure counter.
func (s *SQLiteStore) Unlock(ctx context.Context, id string) error {
	return s.execOne(ctx, "UPDATE principals SET failed_attempts = 0, locked_until = 0 WHERE id = ?", id)
}

// UpdateSecretHash replaces the stored secret hash.
func (s *SQLiteStore) UpdateSecretHash(ctx context.Context, id, hash string) error {
	return s.execOne(ctx, "UPDATE principals SET secret_hash = ? WHERE id = ?", hash, id)
}

func (s *SQLiteStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) scanOne(row *sql.Row) (*Principal, error) {
	var (
		p       Principal
		kind    string
		locked  int64
		created int64
	)
	err := row.Scan(&p.ID, &p.Identifier, &p.Label, &p.SecretHash, &p.FailedAttempts, &locked, &kind, &p.PasskeySecret, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	p.PasskeyKind = PasskeyKind(kind)
	p.LockedUntil = timeOrZero(locked)
	p.CreatedAt = timeOrZero(created)
	return &p, nil
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  id TEXT PRIMARY KEY,
  applied_at INTEGER NOT NULL
);
`); err != nil {
		return err
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(body)
		id := name + ":" + hex.EncodeToString(sum[:])

		var existing string
		err = db.QueryRowContext(ctx, "SELECT id FROM schema_migrations WHERE id = ?", id).Scan(&existing)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations(id, applied_at) VALUES(?, ?)", id, time.Now().Unix()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
