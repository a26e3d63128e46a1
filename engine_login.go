package goAccess

import (
	"context"

	"github.com/MrEthical07/goAccess/internal/flows"
)

// Login checks a username and password and, on success, creates a session.
//
// Wrong credentials, throttling and unconfirmed accounts are reported in
// LoginOutcome.Status with a nil error and create no session. The error is
// non-nil only for directory or Redis faults. When ctx carries a
// CurrentPrincipal, a successful login points it at the new session.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (LoginOutcome, error) {
	if e == nil {
		return LoginOutcome{}, ErrEngineNotReady
	}

	res, err := flows.RunLogin(ctx, flows.LoginInput{
		Username: req.Username,
		Password: req.Password,
		Remember: req.Remember,
		Next:     req.Next,
	}, e.flowDeps.Login)
	if err != nil {
		return LoginOutcome{}, infraError("login", err)
	}
	if res.Status != LoginSucceeded {
		return LoginOutcome{Status: res.Status}, nil
	}

	CurrentPrincipalFromContext(ctx).reset(res.SessionID)

	return LoginOutcome{
		Status:       res.Status,
		AccountID:    res.Account.ID,
		RedirectTo:   res.RedirectTo,
		SessionToken: res.SessionID,
		Expires:      res.ExpiresAt,
		Persistent:   req.Remember,
	}, nil
}

// Logout ends the session named by sessionToken. It never fails; store
// errors are logged and audited. A CurrentPrincipal carried by ctx becomes
// Anonymous.
func (e *Engine) Logout(ctx context.Context, sessionToken string) {
	if e == nil {
		return
	}
	if validSessionID(sessionToken) {
		flows.RunLogout(ctx, sessionToken, e.flowDeps.Logout)
	}
	CurrentPrincipalFromContext(ctx).reset("")
}

// LogoutAll ends every session of accountID and returns how many were
// removed.
func (e *Engine) LogoutAll(ctx context.Context, accountID int64) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	n, err := flows.RunLogoutAll(ctx, accountID, e.flowDeps.Logout)
	if err != nil {
		return 0, infraError("logout_all", err)
	}
	return n, nil
}

// ResolvePrincipal maps a session token to a Principal under the configured
// protection level.
//
// Empty, unknown and expired tokens resolve to Anonymous. A session whose
// account is gone, or that fails a strong protection check, is destroyed
// and resolves to Anonymous. The error is non-nil only for directory or
// Redis faults.
func (e *Engine) ResolvePrincipal(ctx context.Context, sessionToken string) (Principal, error) {
	if e == nil {
		return Anonymous, ErrEngineNotReady
	}

	res, err := flows.RunResolve(ctx, sessionToken, e.flowDeps.Resolve)
	if err != nil {
		return Anonymous, infraError("resolve_principal", err)
	}
	if !res.Authenticated {
		return Anonymous, nil
	}

	account := fromFlowAccount(res.Account)
	return Principal{
		account:   &account,
		sessionID: res.SessionID,
		fresh:     res.Fresh,
	}, nil
}
