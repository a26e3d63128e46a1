// Package rate provides the Redis-backed failed-login throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key suffixes
// after the configured prefix:
//   - "al:" counts failed logins per username (lower-cased)
//   - "ali:" counts failed logins per client IP
//
// # What this package must NOT do
//
//   - Decide what a throttled login looks like to the user; the Engine does.
//   - Be imported outside the goAccess module.
package rate
