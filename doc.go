// Package authcore is an authentication and session lifecycle engine:
// password login, signed short-lived access tokens, rotating opaque refresh
// tokens, one-shot password reset, bulk revocation and per-endpoint rate
// limiting.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Tokens
//
// Access tokens are JWTs carrying the account ID and role. They are not
// persisted, and Authorize reloads the account on every call, so a
// deactivation or role change is enforced immediately even though the role
// claim only changes at the next issuance.
//
// Refresh and reset tokens are 256-bit opaque secrets. Stores keep only
// their SHA-256 digest. An account holds at most one live refresh token:
// login, register and refresh each replace it.
//
// # Rate limiting
//
// Every rate-limited operation counts the call against the client identity
// attached with [WithClientIP] before doing anything else. Counters live in
// Redis when a client is configured and fall back to process memory while
// Redis is unreachable. If no backend can count, [FailOpen] admits the call
// and logs it; [FailClosed] rejects it.
//
// # Errors
//
// Operations return the sentinel errors declared in errors.go. Backend
// failures surface as [ErrStoreUnavailable] and are logged with their cause;
// the cause itself is never part of the returned message.
package authcore
