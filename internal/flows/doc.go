// Package flows contains the orchestration behind every Engine operation.
//
// Each Run function accepts a typed dependency struct of plain functions and
// returns a result carrying a FailureKind. The root package maps failure
// kinds to its public errors, audit events and metrics, so flows never see
// those types.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Perform I/O directly. All I/O goes through the dependency functions.
package flows
