// Package session provides Redis-backed session persistence and the session
// lifecycle: issue, regenerate, validate and destroy.
//
// # Binary encoding
//
// Sessions are stored as a compact versioned binary blob keyed by session id.
// Decoding rejects unknown versions and trailing bytes.
//
// # Fixation
//
// [Manager.Start] and [Manager.Regenerate] always mint a fresh id and
// invalidate the previous one in the same transaction.
//
// # Architecture boundaries
//
// This package does not hash passwords, verify secrets or throttle. It does
// not import the root package.
package session
