// Package authkit is a session-oriented authentication engine: account
// registration with optional email verification, password login with
// throttling, remember-me secrets, password change and reset, and
// Redis-backed sessions.
//
// An [Engine] is assembled once with [New] and [Builder.Build] and is then
// safe for concurrent use. It keeps no per-client state; callers carry a
// [State] between requests and pass it back in. The client's address and
// user agent travel in the context via [WithClientIP] and [WithUserAgent].
//
// # Secrets
//
// Verification, remember-me and reset secrets are selector/token pairs. The
// selector locates the record, only a SHA-256 of the token is stored, and a
// pair is consumed by its first successful verification.
//
// # Sessions
//
// Every login issues a brand-new session id and invalidates the one the
// client held before in the same atomic step. A session id planted before
// authentication is therefore worthless after it.
//
// # Errors
//
// Recoverable outcomes are sentinels such as [ErrInvalidPassword] and
// [ErrTooManyRequests]. Collaborator failures match [ErrStoreUnavailable]
// or another fatal sentinel; see [IsFatal].
package authkit
