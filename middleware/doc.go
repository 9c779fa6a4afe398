// Package middleware exposes Fiber middleware that translates HTTP requests
// into authcore.Engine calls.
//
// # Guards
//
//   - [Guard] authorizes the bearer token against an [authcore.Policy].
//   - [RequireAdmin], [RequireRoles] and [RequireVerifiedPhone] are Guard
//     with a fixed policy.
//
// A guard stores the authorized account in the request locals; read it with
// [AccountFromContext]. Rejections are returned as errors so the app's
// error handler renders them.
//
// # Request context
//
//   - [ClientIP] attaches the caller's address to the user context. Mount it
//     before any route that reaches the engine.
//   - [SecurityHeaders] sets the response hardening headers.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Count requests. Rate limiting happens inside Engine operations.
//   - Make authorization decisions beyond pass/reject from Engine.Authorize.
package middleware
