// Package password implements password hashing and verification.
//
// # Output format
//
// Argon2id hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// bcrypt hashes use the usual $2a$<cost>$ modular crypt format.
//
// Every hash embeds its own parameters. [Verifier] verifies against all known
// schemes and [Verifier.NeedsRehash] reports hashes produced with weaker
// parameters, so the caller can re-hash on the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other authcore package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
