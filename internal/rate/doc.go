// Package rate implements fixed-window request counters for the sensitive
// authentication endpoints.
//
// # Window semantics
//
// Each key counts hits in a window that starts at its first hit: INCR, then
// EXPIRE when the count is 1. Keys are "rl:{endpoint}:{client}".
//
// # Backends and failure policy
//
// A [Limiter] consults a primary [Backend] (Redis) and, once the primary
// fails, serves from a fallback (in-process memory) for a probe interval
// before trying the primary again. When no backend can count, the configured
// [Policy] decides. [PolicyFailOpen] admits the request and marks the
// decision with [SourcePolicy] so callers can log it.
//
// # What this package must NOT do
//
//   - Know about endpoints or their limits; callers pass both.
//   - Be imported outside the authcore module.
package rate
