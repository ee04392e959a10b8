// Package password implements password hashing and verification with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Legacy bcrypt digests ($2a$, $2b$, $2y$) still verify, and always report
// [Argon2.NeedsRehash] so the caller replaces them on the next successful
// login. Digests produced with weaker argon2 parameters are flagged the same
// way.
//
// [Pool] bounds concurrent hashing. Hashing is CPU-bound, and an unbounded
// burst of logins would starve every other request.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length
// floor and ceiling) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other authkit package.
//   - Log plaintext passwords or digests.
package password
