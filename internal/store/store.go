// Package store persists accounts and session cookies in sqlite.
package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Credentials resolves a screenname to its stored account.
type Credentials interface {
	Lookup(ctx context.Context, screenname string) (Account, error)
}

// Cookies issues and redeems the opaque tokens that hand a login from the
// auth service to the session service.
type Cookies interface {
	Issue(ctx context.Context, screenname string) ([]byte, error)
	Validate(ctx context.Context, cookie []byte) (string, error)
}

const DefaultCookieTTL = 2 * time.Minute

// DB wraps sqlite and implements Credentials and Cookies.
type DB struct {
	*sql.DB
	cookieTTL time.Duration
	now       func() time.Time
}

type Option func(*DB)

func WithCookieTTL(ttl time.Duration) Option {
	return func(db *DB) {
		if ttl > 0 {
			db.cookieTTL = ttl
		}
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// Open opens db at path, runs migrations. ":memory:" is supported.
func Open(path string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// one connection keeps an in-memory database shared and serializes writers
	sqlDB.SetMaxOpenConns(1)
	if err := migrate(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	db := &DB{DB: sqlDB, cookieTTL: DefaultCookieTTL, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			screenname TEXT PRIMARY KEY,
			display TEXT NOT NULL,
			password TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS cookies (
			id TEXT PRIMARY KEY,
			secret BLOB NOT NULL,
			screenname TEXT NOT NULL REFERENCES accounts(screenname) ON DELETE CASCADE,
			expires_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_cookies_expires ON cookies(expires_at);
	`)
	return err
}
