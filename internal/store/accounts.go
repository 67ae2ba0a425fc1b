package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("store: not found")

// Account is one registered user. Password is kept in the clear because the
// MD5 challenge needs it to compute the expected digest.
type Account struct {
	Screenname string
	Password   string
	Email      string
}

// NormalizeScreenname folds case and drops spaces; "Alice Smith" and
// "alicesmith" are the same account.
func NormalizeScreenname(sn string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(sn), " ", ""))
}

// UpsertAccount creates or replaces an account keyed by its normalized
// screenname. The display form is kept as given.
func (db *DB) UpsertAccount(ctx context.Context, a Account) error {
	key := NormalizeScreenname(a.Screenname)
	if key == "" {
		return errors.New("store: empty screenname")
	}
	now := db.now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(ctx, `
		INSERT INTO accounts (screenname, display, password, email, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(screenname) DO UPDATE SET
			display = excluded.display,
			password = excluded.password,
			email = excluded.email`,
		key, strings.TrimSpace(a.Screenname), a.Password, a.Email, now)
	return err
}

// Lookup returns the account for screenname or ErrNotFound.
func (db *DB) Lookup(ctx context.Context, screenname string) (Account, error) {
	var a Account
	err := db.QueryRowContext(ctx,
		"SELECT display, password, email FROM accounts WHERE screenname = ?",
		NormalizeScreenname(screenname),
	).Scan(&a.Screenname, &a.Password, &a.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// CountAccounts reports how many accounts exist.
func (db *DB) CountAccounts(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&n)
	return n, err
}
