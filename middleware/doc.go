// Package middleware adapts goAccess.Engine sessions to net/http.
//
// # Handlers
//
//   - [Session] attaches client context and a lazily resolved
//     goAccess.CurrentPrincipal to every request.
//   - [RequireAuth] redirects anonymous requests to the login page.
//   - [RequireFresh] additionally redirects sessions whose client context
//     changed under basic protection.
//
// [SetSessionCookie] and [ClearSessionCookie] write the session cookie after
// Engine.Login and Engine.Logout.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Credential checks,
// session storage and protection decisions stay in the Engine.
package middleware
