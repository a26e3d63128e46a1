// Package goAccess provides password login, Redis-backed server-side sessions and
// signed account activation links for web applications.
//
// An [Engine] is assembled with [Builder] from a [Config], a Redis client and a
// [UserDirectory]. Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// goAccess is the public surface. It exposes [Engine], [Builder], [Config], the
// request-scoped [CurrentPrincipal] and the outcome types ([LoginOutcome],
// [ActivationOutcome]). Flow orchestration, rate limiting and audit dispatch live
// under internal/. Hashing, token signing and session storage are the password,
// token and session packages.
//
// # Failure reporting
//
// Expected outcomes are values: a wrong password is a [LoginOutcome] status, an
// expired activation link is an [ActivationOutcome] status, an unknown session is
// [Anonymous]. A non-nil error always means infrastructure (Redis, the directory)
// or a programming error, and carries an error code readable with
// github.com/samber/oops.
//
// # Session protection
//
// Each session records the protection level in force when it was created. When a
// session is resolved the stricter of that level and the configured one applies:
// [ProtectionBasic] marks a session from a changed client as not fresh,
// [ProtectionStrong] destroys it and also destroys sessions whose account
// username, email or password changed.
package goAccess
