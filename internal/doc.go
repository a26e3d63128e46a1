// Package internal contains helper utilities that are intentionally private to goAccess.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function flow orchestrators for every Engine operation
//   - logging: slog setup with trace correlation
//   - rate: Redis-backed login throttle
//
// # What this package must NOT do
//
//   - Export types that appear in the public goAccess API.
//   - Be imported by any package outside the goAccess module.
package internal
