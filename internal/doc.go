// Package internal contains helpers that are private to authcore, chiefly
// opaque secret generation and short numeric codes.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators for the login, refresh and reset operations
//   - rate: fixed-window rate limiting with Redis and in-process backends
//   - stores: Redis-backed phone verification challenges
//   - security: posture summary behind Engine.SecurityReport
//   - dbx: transaction helper for the Postgres stores
//   - config, logging: process-level configuration and zap construction
//
// # What this package must NOT do
//
//   - Be imported by any package outside the authcore module.
package internal
