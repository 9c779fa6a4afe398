// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zap, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured audit record with timestamp, type, endpoint, account, IP, metadata.
//
// This package owns event buffering and sink delivery. It does not decide which
// events to emit; the Engine does.
package audit
