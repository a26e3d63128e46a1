package flows

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ActivationStatus classifies a redemption. The zero value is not a valid
// status.
type ActivationStatus int

const (
	// ActivationInvalid covers malformed, forged and expired tokens.
	ActivationInvalid ActivationStatus = iota + 1
	// ActivationUnknownAccount means the token names an account that does
	// not exist.
	ActivationUnknownAccount
	// ActivationAlreadyConfirmed means the account was confirmed before,
	// possibly by a concurrent redemption.
	ActivationAlreadyConfirmed
	// ActivationConfirmed means this redemption confirmed the account.
	ActivationConfirmed
)

func (s ActivationStatus) String() string {
	switch s {
	case ActivationInvalid:
		return "invalid"
	case ActivationUnknownAccount:
		return "unknown_account"
	case ActivationAlreadyConfirmed:
		return "already_confirmed"
	case ActivationConfirmed:
		return "confirmed"
	default:
		return "unset"
	}
}

// ActivationResult is the flow-local redemption outcome. Reason is set only
// for ActivationInvalid and is meant for logs.
type ActivationResult struct {
	Status    ActivationStatus
	AccountID int64
	Reason    error
}

// ActivationMetrics carries metric IDs needed by the activation flows.
type ActivationMetrics struct {
	Issued           int
	Confirmed        int
	AlreadyConfirmed int
	Invalid          int
	UnknownAccount   int
}

// ActivationEvents carries audit event names used by the activation flows.
type ActivationEvents struct {
	Issued   string
	Redeemed string
}

// ActivationErrors carries host-level sentinel errors used by the activation flows.
type ActivationErrors struct {
	EngineNotReady  error
	AccountNotFound error
	TokenMalformed  error
}

// ActivationDeps captures activation dependencies.
type ActivationDeps struct {
	TTL time.Duration

	IssueToken     func(map[string]any, time.Duration) (string, error)
	RedeemToken    func(string) (map[string]any, error)
	FindByID       func(context.Context, int64) (AccountRecord, error)
	ConfirmAccount func(context.Context, int64) (bool, error)

	MetricInc func(int)
	EmitAudit func(context.Context, AuditRecord)

	Metrics ActivationMetrics
	Events  ActivationEvents
	Errors  ActivationErrors
}

func (deps *ActivationDeps) defaults() {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}

// RunIssueActivation returns a token that confirms accountID when redeemed.
// It does not check that the account exists.
func RunIssueActivation(ctx context.Context, accountID int64, deps ActivationDeps) (string, error) {
	deps.defaults()
	if deps.IssueToken == nil {
		return "", deps.Errors.EngineNotReady
	}

	tok, err := deps.IssueToken(map[string]any{"id": accountID}, deps.TTL)
	if err != nil {
		return "", err
	}

	deps.MetricInc(deps.Metrics.Issued)
	deps.EmitAudit(ctx, AuditRecord{
		EventType: deps.Events.Issued,
		Success:   true,
		AccountID: accountID,
	})
	return tok, nil
}

// RunRedeemActivation confirms the account named by tok. Token problems and
// unknown or already confirmed accounts are statuses; only directory faults
// are errors.
func RunRedeemActivation(ctx context.Context, tok string, deps ActivationDeps) (ActivationResult, error) {
	deps.defaults()
	if deps.RedeemToken == nil || deps.FindByID == nil || deps.ConfirmAccount == nil {
		return ActivationResult{}, deps.Errors.EngineNotReady
	}

	payload, err := deps.RedeemToken(tok)
	if err != nil {
		return invalidActivation(ctx, err, deps), nil
	}

	id, ok := accountIDFromPayload(payload)
	if !ok {
		return invalidActivation(ctx, deps.Errors.TokenMalformed, deps), nil
	}

	account, err := deps.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, deps.Errors.AccountNotFound) {
			return ActivationResult{}, err
		}
		deps.MetricInc(deps.Metrics.UnknownAccount)
		deps.EmitAudit(ctx, AuditRecord{
			EventType: deps.Events.Redeemed,
			AccountID: id,
			Reason:    ActivationUnknownAccount.String(),
		})
		return ActivationResult{Status: ActivationUnknownAccount, AccountID: id}, nil
	}

	if account.Confirmed {
		return alreadyConfirmed(ctx, id, deps), nil
	}

	changed, err := deps.ConfirmAccount(ctx, id)
	if err != nil {
		return ActivationResult{}, err
	}
	if !changed {
		return alreadyConfirmed(ctx, id, deps), nil
	}

	deps.MetricInc(deps.Metrics.Confirmed)
	deps.EmitAudit(ctx, AuditRecord{
		EventType: deps.Events.Redeemed,
		Success:   true,
		AccountID: id,
		Username:  account.Username,
	})
	return ActivationResult{Status: ActivationConfirmed, AccountID: id}, nil
}

func invalidActivation(ctx context.Context, reason error, deps ActivationDeps) ActivationResult {
	deps.MetricInc(deps.Metrics.Invalid)
	deps.EmitAudit(ctx, AuditRecord{
		EventType: deps.Events.Redeemed,
		Reason:    reasonCode(reason),
	})
	return ActivationResult{Status: ActivationInvalid, Reason: reason}
}

func alreadyConfirmed(ctx context.Context, id int64, deps ActivationDeps) ActivationResult {
	deps.MetricInc(deps.Metrics.AlreadyConfirmed)
	deps.EmitAudit(ctx, AuditRecord{
		EventType: deps.Events.Redeemed,
		AccountID: id,
		Reason:    ActivationAlreadyConfirmed.String(),
	})
	return ActivationResult{Status: ActivationAlreadyConfirmed, AccountID: id}
}

// accountIDFromPayload accepts integral JSON numbers only.
func accountIDFromPayload(payload map[string]any) (int64, bool) {
	switch v := payload["id"].(type) {
	case json.Number:
		id, err := v.Int64()
		return id, err == nil
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func reasonCode(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
