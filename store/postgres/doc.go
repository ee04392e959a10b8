// Package postgres is an authkit.AccountStore backed by PostgreSQL through
// database/sql and the pgx driver.
//
// Open dials the database and Migrate applies the embedded schema. Email
// uniqueness is enforced by the authkit_accounts_email_key constraint and
// non-empty usernames by the partial unique index
// authkit_accounts_username_key. Violations of the latter, or of any unique
// index whose name contains "username", map to
// authkit.ErrProviderDuplicateUsername. Deployments that allow shared
// usernames drop that index.
package postgres
