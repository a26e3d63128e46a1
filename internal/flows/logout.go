package flows

import (
	"context"
	"strconv"

	"github.com/MrEthical07/goAccess/session"
)

// LogoutMetrics carries metric IDs needed by the logout flows.
type LogoutMetrics struct {
	Logout    int
	LogoutAll int
}

// LogoutEvents carries audit event names used by the logout flows.
type LogoutEvents struct {
	Logout    string
	LogoutAll string
}

// LogoutErrors carries host-level sentinel errors used by the logout flows.
type LogoutErrors struct {
	EngineNotReady error
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Sessions SessionStore

	MetricInc func(int)
	EmitAudit func(context.Context, AuditRecord)
	Warn      func(string, ...any)

	Metrics LogoutMetrics
	Events  LogoutEvents
	Errors  LogoutErrors
}

func (deps *LogoutDeps) defaults() {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopWarn
	}
}

// RunLogout ends the session named by sessionID. It never fails: an empty
// or unknown ID is a no-op and store faults are logged and audited.
func RunLogout(ctx context.Context, sessionID string, deps LogoutDeps) {
	deps.defaults()
	if sessionID == "" || deps.Sessions == nil {
		return
	}

	ref := session.Ref(sessionID)
	existed, err := deps.Sessions.Delete(ctx, sessionID)
	if err != nil {
		deps.Warn("goAccess: logout session delete failed", "session", ref, "error", err)
		deps.EmitAudit(ctx, AuditRecord{
			EventType:  deps.Events.Logout,
			SessionRef: ref,
			Reason:     "store_unavailable",
		})
		return
	}
	if !existed {
		return
	}

	deps.MetricInc(deps.Metrics.Logout)
	deps.EmitAudit(ctx, AuditRecord{
		EventType:  deps.Events.Logout,
		Success:    true,
		SessionRef: ref,
	})
}

// RunLogoutAll ends every session indexed for accountID and returns how many
// were removed.
func RunLogoutAll(ctx context.Context, accountID int64, deps LogoutDeps) (int, error) {
	deps.defaults()
	if deps.Sessions == nil {
		return 0, deps.Errors.EngineNotReady
	}

	n, err := deps.Sessions.DeleteAllForAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}

	deps.MetricInc(deps.Metrics.LogoutAll)
	deps.EmitAudit(ctx, AuditRecord{
		EventType: deps.Events.LogoutAll,
		Success:   true,
		AccountID: accountID,
		Metadata:  map[string]string{"sessions": strconv.Itoa(n)},
	})
	return n, nil
}
