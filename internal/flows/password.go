package flows

import (
	"context"
	"errors"
	"fmt"
)

// ChangePasswordMetrics carries metric IDs needed by the password change flow.
type ChangePasswordMetrics struct {
	Success int
	Failure int
}

// ChangePasswordEvents carries audit event names used by the password change flow.
type ChangePasswordEvents struct {
	PasswordChanged string
}

// ChangePasswordErrors carries host-level sentinel errors used by the password change flow.
type ChangePasswordErrors struct {
	EngineNotReady     error
	InvalidCredentials error
}

// ChangePasswordDeps captures password change dependencies.
type ChangePasswordDeps struct {
	ValidatePassword func(string) error

	FindByID       func(context.Context, int64) (AccountRecord, error)
	SaveAccount    func(context.Context, AccountRecord) error
	VerifyPassword func(string, string) bool
	HashPassword   func(string) (string, error)

	MetricInc func(int)
	EmitAudit func(context.Context, AuditRecord)

	Metrics ChangePasswordMetrics
	Events  ChangePasswordEvents
	Errors  ChangePasswordErrors
}

// RunChangePassword replaces the password of accountID after verifying the
// current one. A wrong current password returns Errors.InvalidCredentials.
func RunChangePassword(ctx context.Context, accountID int64, current, next string, deps ChangePasswordDeps) error {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.FindByID == nil || deps.SaveAccount == nil || deps.VerifyPassword == nil || deps.HashPassword == nil {
		return deps.Errors.EngineNotReady
	}

	account, err := deps.FindByID(ctx, accountID)
	if err != nil {
		return err
	}

	if !deps.VerifyPassword(current, account.PasswordHash) {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, AuditRecord{
			EventType: deps.Events.PasswordChanged,
			AccountID: accountID,
			Username:  account.Username,
			Reason:    "bad_password",
		})
		return deps.Errors.InvalidCredentials
	}

	if deps.ValidatePassword != nil {
		if err := deps.ValidatePassword(next); err != nil {
			deps.MetricInc(deps.Metrics.Failure)
			return err
		}
	}

	hash, err := deps.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	account.PasswordHash = hash
	if err := deps.SaveAccount(ctx, account); err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, AuditRecord{
		EventType: deps.Events.PasswordChanged,
		Success:   true,
		AccountID: accountID,
		Username:  account.Username,
	})
	return nil
}

// ResendDeps captures activation resend dependencies.
type ResendDeps struct {
	FindByEmail     func(context.Context, string) (AccountRecord, error)
	IssueActivation func(context.Context, int64) (string, error)
	SendActivation  func(context.Context, AccountRecord, string)

	Errors ResendErrors
}

// ResendErrors carries host-level sentinel errors used by the resend flow.
type ResendErrors struct {
	EngineNotReady  error
	AccountNotFound error
}

// RunResendActivation issues and sends a fresh activation token for the
// unconfirmed account registered under email. Unknown and already confirmed
// addresses succeed without sending anything.
func RunResendActivation(ctx context.Context, email string, deps ResendDeps) error {
	if deps.FindByEmail == nil || deps.IssueActivation == nil || deps.SendActivation == nil {
		return deps.Errors.EngineNotReady
	}

	account, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, deps.Errors.AccountNotFound) {
			return nil
		}
		return err
	}
	if account.Confirmed {
		return nil
	}

	tok, err := deps.IssueActivation(ctx, account.ID)
	if err != nil {
		return err
	}
	deps.SendActivation(ctx, account, tok)
	return nil
}
