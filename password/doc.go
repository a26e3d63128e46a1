// Package password implements credential hashing and verification with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.Verify] never fails: malformed or foreign hashes verify as false, so a
// corrupted stored hash and a wrong password look the same to the caller.
// [Argon2.Check] exposes the parse error for logging.
//
// Legacy bcrypt hashes ($2a$, $2b$, $2y$) verify and always report
// [Argon2.NeedsUpgrade], letting the engine rewrite them on the next login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Enforce password policy (length, charset); registration owns that.
//   - Import any other goAccess package.
package password
