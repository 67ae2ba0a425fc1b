package store

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	cookieIDLen     = 8
	cookieSecretLen = 24
	// CookieLen is the size of an issued cookie: id followed by secret.
	CookieLen = cookieIDLen + cookieSecretLen
)

var (
	ErrInvalidCookie = errors.New("store: invalid cookie")
	ErrExpiredCookie = errors.New("store: expired cookie")
)

// Issue mints a single-use cookie for screenname, valid for the configured
// TTL.
func (db *DB) Issue(ctx context.Context, screenname string) ([]byte, error) {
	cookie := make([]byte, CookieLen)
	if _, err := rand.Read(cookie); err != nil {
		return nil, fmt.Errorf("store: cookie entropy: %w", err)
	}
	expires := db.now().Add(db.cookieTTL).UnixNano()
	_, err := db.ExecContext(ctx,
		"INSERT INTO cookies (id, secret, screenname, expires_at) VALUES (?, ?, ?, ?)",
		hex.EncodeToString(cookie[:cookieIDLen]),
		cookie[cookieIDLen:],
		NormalizeScreenname(screenname),
		expires,
	)
	if err != nil {
		return nil, err
	}
	return cookie, nil
}

// Validate redeems cookie and returns the screenname it was issued for. A
// cookie is consumed by its first presentation, valid or expired.
func (db *DB) Validate(ctx context.Context, cookie []byte) (string, error) {
	if len(cookie) != CookieLen {
		return "", ErrInvalidCookie
	}
	id := hex.EncodeToString(cookie[:cookieIDLen])

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var (
		secret     []byte
		screenname string
		expiresAt  int64
	)
	err = tx.QueryRowContext(ctx,
		"SELECT c.secret, a.display, c.expires_at FROM cookies c JOIN accounts a ON a.screenname = c.screenname WHERE c.id = ?",
		id,
	).Scan(&secret, &screenname, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidCookie
	}
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare(secret, cookie[cookieIDLen:]) != 1 {
		return "", ErrInvalidCookie
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM cookies WHERE id = ?", id); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	if db.now().UnixNano() > expiresAt {
		return "", ErrExpiredCookie
	}
	return screenname, nil
}

// PurgeExpired deletes cookies past their expiry and reports how many went.
func (db *DB) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM cookies WHERE expires_at < ?", db.now().UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountCookies reports how many issued cookies are still unredeemed.
func (db *DB) CountCookies(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cookies").Scan(&n)
	return n, err
}
