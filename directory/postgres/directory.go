// Package postgres provides a goAccess.UserDirectory backed by PostgreSQL
// through pgx, with the accounts schema shipped as embedded migrations.
package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	goAccess "github.com/MrEthical07/goAccess"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// Unique index names from migrations/000001_accounts.up.sql.
const (
	usernameIndex = "accounts_username_key"
	emailIndex    = "accounts_email_key"
)

const selectAccount = `SELECT id, username, email, password_hash, confirmed, created_at FROM accounts`

// Pool is the subset of *pgxpool.Pool the directory needs.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Directory implements goAccess.UserDirectory over the accounts table.
// Usernames and emails are unique case-insensitively.
type Directory struct {
	pool Pool
}

// New wraps an existing pool.
func New(pool Pool) *Directory {
	return &Directory{pool: pool}
}

// Open connects a pgxpool to databaseURL and verifies the connection.
// Callers close the returned pool.
func Open(ctx context.Context, databaseURL string) (*Directory, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, oops.Code("DB_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	return New(pool), pool, nil
}

// Ping checks database reachability.
func (d *Directory) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return nil
}

func (d *Directory) FindByID(ctx context.Context, id int64) (goAccess.Account, error) {
	row := d.pool.QueryRow(ctx, selectAccount+` WHERE id = $1`, id)
	return d.scan(row, "id", id)
}

func (d *Directory) FindByUsername(ctx context.Context, username string) (goAccess.Account, error) {
	row := d.pool.QueryRow(ctx, selectAccount+` WHERE lower(username) = lower($1)`, strings.TrimSpace(username))
	return d.scan(row, "username", username)
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (goAccess.Account, error) {
	row := d.pool.QueryRow(ctx, selectAccount+` WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
	return d.scan(row, "email", email)
}

func (d *Directory) scan(row pgx.Row, key string, value any) (goAccess.Account, error) {
	var a goAccess.Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Confirmed, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return goAccess.Account{}, oops.Code("ACCOUNT_NOT_FOUND").With(key, value).Wrap(goAccess.ErrAccountNotFound)
	}
	if err != nil {
		return goAccess.Account{}, oops.Code("ACCOUNT_GET_FAILED").With(key, value).Wrap(err)
	}
	return a, nil
}

// Create inserts account and returns it with the assigned ID. A zero
// CreatedAt is set to the current time.
func (d *Directory) Create(ctx context.Context, account goAccess.Account) (goAccess.Account, error) {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	err := d.pool.QueryRow(ctx, `
		INSERT INTO accounts (username, email, password_hash, confirmed, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, account.Username, account.Email, account.PasswordHash, account.Confirmed, account.CreatedAt).Scan(&account.ID)
	if err != nil {
		if dup := uniqueViolation(err); dup != nil {
			return goAccess.Account{}, oops.Code("ACCOUNT_DUPLICATE").With("username", account.Username).Wrap(dup)
		}
		return goAccess.Account{}, oops.Code("ACCOUNT_CREATE_FAILED").With("username", account.Username).Wrap(err)
	}
	return account, nil
}

// Save updates username, email and password_hash. confirmed is written only
// by ConfirmAccount, so a stale read can never undo an activation.
func (d *Directory) Save(ctx context.Context, account goAccess.Account) error {
	tag, err := d.pool.Exec(ctx, `
		UPDATE accounts
		SET username = $2, email = $3, password_hash = $4
		WHERE id = $1
	`, account.ID, account.Username, account.Email, account.PasswordHash)
	if err != nil {
		if dup := uniqueViolation(err); dup != nil {
			return oops.Code("ACCOUNT_DUPLICATE").With("id", account.ID).Wrap(dup)
		}
		return oops.Code("ACCOUNT_SAVE_FAILED").With("id", account.ID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", account.ID).Wrap(goAccess.ErrAccountNotFound)
	}
	return nil
}

// ConfirmAccount sets confirmed in a single conditional UPDATE, so of two
// concurrent redemptions exactly one reports true.
func (d *Directory) ConfirmAccount(ctx context.Context, id int64) (bool, error) {
	tag, err := d.pool.Exec(ctx, `UPDATE accounts SET confirmed = TRUE WHERE id = $1 AND NOT confirmed`, id)
	if err != nil {
		return false, oops.Code("ACCOUNT_CONFIRM_FAILED").With("id", id).Wrap(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	err = d.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, oops.Code("ACCOUNT_CONFIRM_FAILED").With("id", id).Wrap(err)
	}
	if !exists {
		return false, oops.Code("ACCOUNT_NOT_FOUND").With("id", id).Wrap(goAccess.ErrAccountNotFound)
	}
	return false, nil
}

// uniqueViolation maps a unique index violation to the matching sentinel,
// or returns nil for any other error.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case usernameIndex:
		return goAccess.ErrUsernameTaken
	case emailIndex:
		return goAccess.ErrEmailTaken
	default:
		return goAccess.ErrUsernameTaken
	}
}
