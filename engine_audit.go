package goAccess

import (
	"context"

	"github.com/MrEthical07/goAccess/internal/flows"
	"github.com/google/uuid"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventLoginThrottled     = "login_throttled"
	auditEventLogout             = "logout"
	auditEventLogoutAll          = "logout_all"
	auditEventSessionInvalidated = "session_invalidated"
	auditEventActivationIssued   = "activation_issued"
	auditEventActivationRedeemed = "activation_redeemed"
	auditEventAccountCreated     = "account_created"
	auditEventPasswordChanged    = "password_changed"
)

func (e *Engine) emitAudit(ctx context.Context, rec flows.AuditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		ID:         uuid.NewString(),
		Timestamp:  e.clock.Now().UTC(),
		EventType:  rec.EventType,
		AccountID:  rec.AccountID,
		Username:   rec.Username,
		SessionRef: rec.SessionRef,
		IP:         clientIPFromContext(ctx),
		Success:    rec.Success,
		Reason:     rec.Reason,
		Metadata:   rec.Metadata,
	}

	e.audit.Emit(ctx, event)
}
