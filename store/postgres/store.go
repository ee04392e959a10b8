package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

// DBTX is the subset of database/sql the store uses. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements authkit.AccountStore.
type Store struct {
	db DBTX
}

var _ authkit.AccountStore = (*Store)(nil)

func New(db DBTX) *Store {
	return &Store{db: db}
}

// Open connects to dsn with the pgx driver and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

const selectAccount = `SELECT id, email, username, password_hash, verified, created_at, last_login_at, failed_logins
		 FROM authkit_accounts
		 `

func (s *Store) Create(ctx context.Context, account *authkit.Account) error {
	query :=
		`INSERT INTO authkit_accounts (id, email, username, password_hash, verified, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 `

	_, err := s.db.ExecContext(ctx, query,
		account.ID, account.Email, account.Username, account.PasswordHash,
		account.Status == authkit.StatusVerified, account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if strings.Contains(pgErr.ConstraintName, "username") {
				return authkit.ErrProviderDuplicateUsername
			}
			return authkit.ErrProviderDuplicateEmail
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) ByID(ctx context.Context, id string) (*authkit.Account, error) {
	return s.one(ctx, selectAccount+`WHERE id = $1`, id)
}

func (s *Store) ByEmail(ctx context.Context, email string) (*authkit.Account, error) {
	return s.one(ctx, selectAccount+`WHERE email = $1`, email)
}

// ByUsername returns authkit.ErrProviderAmbiguous when more than one
// account carries username.
func (s *Store) ByUsername(ctx context.Context, username string) (*authkit.Account, error) {
	rows, err := s.db.QueryContext(ctx, selectAccount+`WHERE username = $1 LIMIT 2`, username)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var found *authkit.Account
	for rows.Next() {
		if found != nil {
			return nil, authkit.ErrProviderAmbiguous
		}
		found, err = scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if found == nil {
		return nil, authkit.ErrProviderNotFound
	}
	return found, nil
}

func (s *Store) UpdatePassword(ctx context.Context, id, hash string) error {
	return s.exec(ctx,
		`UPDATE authkit_accounts SET password_hash = $2
		 WHERE id = $1
		 `, id, hash)
}

// MarkVerified never clears the flag, so repeating it is harmless.
func (s *Store) MarkVerified(ctx context.Context, id string) error {
	return s.exec(ctx,
		`UPDATE authkit_accounts SET verified = TRUE
		 WHERE id = $1
		 `, id)
}

func (s *Store) RecordLogin(ctx context.Context, id string, at time.Time, success bool) error {
	if success {
		return s.exec(ctx,
			`UPDATE authkit_accounts SET last_login_at = $2, failed_logins = 0
			 WHERE id = $1
			 `, id, at)
	}
	return s.exec(ctx,
		`UPDATE authkit_accounts SET failed_logins = failed_logins + 1
		 WHERE id = $1
		 `, id)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return authkit.ErrProviderNotFound
	}
	return nil
}

func (s *Store) one(ctx context.Context, query string, arg string) (*authkit.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authkit.ErrProviderNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*authkit.Account, error) {
	var (
		a        authkit.Account
		verified bool
		last     sql.NullTime
		failed   int64
	)
	if err := row.Scan(&a.ID, &a.Email, &a.Username, &a.PasswordHash, &verified, &a.CreatedAt, &last, &failed); err != nil {
		return nil, err
	}
	if verified {
		a.Status = authkit.StatusVerified
	}
	if last.Valid {
		a.LastLoginAt = last.Time
	}
	a.FailedLogins = int(failed)
	return &a, nil
}
