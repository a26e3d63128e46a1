package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goAccess/session"
)

// ResolveResult is the flow-local principal. Authenticated is false for the
// anonymous principal, in which case the other fields are zero.
type ResolveResult struct {
	Authenticated bool
	Fresh         bool
	Account       AccountRecord
	SessionID     string
	Session       *session.Session
}

// ResolveMetrics carries metric IDs needed by the resolve flow.
type ResolveMetrics struct {
	SessionInvalidated int
}

// ResolveEvents carries audit event names used by the resolve flow.
type ResolveEvents struct {
	SessionInvalidated string
}

// ResolveErrors carries host-level sentinel errors used by the resolve flow.
type ResolveErrors struct {
	EngineNotReady  error
	SessionNotFound error
	AccountNotFound error
}

// ResolveDeps captures principal resolution dependencies.
type ResolveDeps struct {
	// Protection is the configured level. A session is checked at the
	// stricter of this and the level it was created with.
	Protection session.ProtectionLevel

	ClientIPFromContext  func(context.Context) string
	UserAgentFromContext func(context.Context) string
	ValidSessionID       func(string) bool

	Sessions    SessionStore
	FindByID    func(context.Context, int64) (AccountRecord, error)
	Fingerprint func(session.AccountAttributes) [32]byte

	ObserveLatency func(time.Duration)
	MetricInc      func(int)
	EmitAudit      func(context.Context, AuditRecord)
	Warn           func(string, ...any)

	Metrics ResolveMetrics
	Events  ResolveEvents
	Errors  ResolveErrors
}

// RunResolve maps a session token to a principal. Empty, malformed, unknown
// and expired tokens resolve to the anonymous principal; so do sessions whose
// account vanished or, under strong protection, whose account or client
// changed. The error is non-nil only for infrastructure faults.
func RunResolve(ctx context.Context, sessionID string, deps ResolveDeps) (ResolveResult, error) {
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = emptyFromContext
	}
	if deps.UserAgentFromContext == nil {
		deps.UserAgentFromContext = emptyFromContext
	}
	if deps.ValidSessionID == nil {
		deps.ValidSessionID = func(id string) bool { return id != "" }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopWarn
	}
	if deps.Sessions == nil || deps.FindByID == nil || deps.Fingerprint == nil {
		return ResolveResult{}, deps.Errors.EngineNotReady
	}
	if deps.ObserveLatency != nil {
		start := time.Now()
		defer func() { deps.ObserveLatency(time.Since(start)) }()
	}

	if sessionID == "" || !deps.ValidSessionID(sessionID) {
		return ResolveResult{}, nil
	}

	sess, err := deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, deps.Errors.SessionNotFound) {
			return ResolveResult{}, nil
		}
		return ResolveResult{}, err
	}

	account, err := deps.FindByID(ctx, sess.AccountID)
	if err != nil {
		if !errors.Is(err, deps.Errors.AccountNotFound) {
			return ResolveResult{}, err
		}
		return ResolveResult{}, invalidate(ctx, sess, "account_missing", deps)
	}

	level := deps.Protection
	if sess.Protection > level {
		level = sess.Protection
	}

	fresh := true
	switch level {
	case session.ProtectionNone:
	case session.ProtectionBasic:
		current := session.ClientHash(deps.UserAgentFromContext(ctx), deps.ClientIPFromContext(ctx))
		fresh = session.ClientMatches(sess.ClientHash, current)
	default:
		if !session.Equal(sess.Fingerprint, deps.Fingerprint(account.attributes())) {
			return ResolveResult{}, invalidate(ctx, sess, "fingerprint_mismatch", deps)
		}
		current := session.ClientHash(deps.UserAgentFromContext(ctx), deps.ClientIPFromContext(ctx))
		if !session.ClientMatches(sess.ClientHash, current) {
			return ResolveResult{}, invalidate(ctx, sess, "client_mismatch", deps)
		}
	}

	return ResolveResult{
		Authenticated: true,
		Fresh:         fresh,
		Account:       account,
		SessionID:     sessionID,
		Session:       sess,
	}, nil
}

func invalidate(ctx context.Context, sess *session.Session, reason string, deps ResolveDeps) error {
	if _, err := deps.Sessions.Delete(ctx, sess.SessionID); err != nil {
		return err
	}
	deps.MetricInc(deps.Metrics.SessionInvalidated)
	deps.EmitAudit(ctx, AuditRecord{
		EventType:  deps.Events.SessionInvalidated,
		AccountID:  sess.AccountID,
		SessionRef: session.Ref(sess.SessionID),
		Reason:     reason,
	})
	return nil
}
