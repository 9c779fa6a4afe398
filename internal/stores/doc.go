// Package stores provides short-lived challenge stores for authentication
// flows. The phone verification store keeps one binary-encoded challenge per
// account in Redis with a TTL; Consume runs as a Lua script, so checking the
// code, counting the attempt and deleting the record are atomic. An
// in-memory variant covers deployments without Redis.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Log or expose plaintext codes.
//   - Use non-constant-time comparisons for code matching.
package stores
