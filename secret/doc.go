// Package secret issues and redeems selector/token secrets.
//
// A secret is two independent random values. The selector is a plain lookup
// key and is stored as-is. The token is the secret half and only its SHA-256
// is persisted. Verification reads the record by selector, compares
// fixed-length hashes in constant time, and then consumes the record with a
// single atomic compare-and-set, so a secret redeems at most once even when
// several requests race.
//
// Secrets are scoped by [Purpose]: email verification links, remember-me
// cookies and password reset links never cross.
//
// # What this package must NOT do
//
//   - Persist or log raw tokens.
//   - Consume a record through read-then-write across two round trips.
package secret
