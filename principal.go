package goAccess

import (
	"context"
	"sync"
)

// Principal is the identity behind a request: either an authenticated
// account bound to a session, or Anonymous.
type Principal struct {
	account   *Account
	sessionID string
	fresh     bool
}

// Anonymous is the principal of requests without a valid session.
var Anonymous = Principal{}

// IsAuthenticated reports whether p carries an account.
func (p Principal) IsAuthenticated() bool { return p.account != nil }

// IsAnonymous is the negation of IsAuthenticated.
func (p Principal) IsAnonymous() bool { return p.account == nil }

// Account returns the authenticated account. ok is false for Anonymous.
func (p Principal) Account() (account Account, ok bool) {
	if p.account == nil {
		return Account{}, false
	}
	return *p.account, true
}

// Fresh reports whether the session was verified against the client it was
// created for. Under basic protection a changed client context leaves the
// principal authenticated but not fresh; callers may ask for the password
// again before sensitive actions. Anonymous is never fresh.
func (p Principal) Fresh() bool { return p.account != nil && p.fresh }

// SessionID returns the session token the principal was resolved from.
func (p Principal) SessionID() string { return p.sessionID }

// CurrentPrincipal is a request-scoped, lazily resolved principal. The
// session token is resolved on the first Get and cached; Login and Logout
// called with a context carrying the holder replace the token, so later
// reads in the same request see the new identity.
//
// A CurrentPrincipal is safe for concurrent use by the goroutines of one
// request.
type CurrentPrincipal struct {
	engine *Engine

	mu        sync.Mutex
	token     string
	resolved  bool
	principal Principal
}

// NewCurrentPrincipal returns a holder for sessionToken. An empty token
// resolves to Anonymous.
func (e *Engine) NewCurrentPrincipal(sessionToken string) *CurrentPrincipal {
	return &CurrentPrincipal{engine: e, token: sessionToken}
}

// Get resolves the principal once and returns the cached value afterwards.
// Resolution errors are not cached.
func (c *CurrentPrincipal) Get(ctx context.Context) (Principal, error) {
	if c == nil {
		return Anonymous, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved {
		return c.principal, nil
	}

	p, err := c.engine.ResolvePrincipal(ctx, c.token)
	if err != nil {
		return Anonymous, err
	}
	c.principal = p
	c.resolved = true
	return p, nil
}

// Token returns the session token the holder currently resolves.
func (c *CurrentPrincipal) Token() string {
	if c == nil {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *CurrentPrincipal) reset(token string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.token = token
	c.resolved = false
	c.principal = Anonymous
	c.mu.Unlock()
}
