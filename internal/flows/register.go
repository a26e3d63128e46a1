package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RegisterInput is the flow-local registration request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// RegisterResult carries the created account and its activation token.
type RegisterResult struct {
	Account         AccountRecord
	ActivationToken string
}

// RegisterMetrics carries metric IDs needed by the registration flow.
type RegisterMetrics struct {
	Success   int
	Duplicate int
	Invalid   int
}

// RegisterEvents carries audit event names used by the registration flow.
type RegisterEvents struct {
	AccountCreated string
}

// RegisterErrors carries host-level sentinel errors used by the registration flow.
type RegisterErrors struct {
	EngineNotReady  error
	AccountNotFound error
	UsernameTaken   error
	EmailTaken      error
}

// RegisterDeps captures registration dependencies.
type RegisterDeps struct {
	Validate func(RegisterInput) error
	Now      func() time.Time

	FindByUsername func(context.Context, string) (AccountRecord, error)
	FindByEmail    func(context.Context, string) (AccountRecord, error)
	Create         func(context.Context, AccountRecord) (AccountRecord, error)
	HashPassword   func(string) (string, error)

	IssueActivation func(context.Context, int64) (string, error)
	SendActivation  func(context.Context, AccountRecord, string)

	MetricInc func(int)
	EmitAudit func(context.Context, AuditRecord)

	Metrics RegisterMetrics
	Events  RegisterEvents
	Errors  RegisterErrors
}

// RunRegister creates an unconfirmed account and hands its activation token
// to the mailer. Validation failures come back from deps.Validate unchanged;
// duplicates come back as the UsernameTaken or EmailTaken sentinel.
func RunRegister(ctx context.Context, in RegisterInput, deps RegisterDeps) (RegisterResult, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.FindByUsername == nil ||
		deps.FindByEmail == nil ||
		deps.Create == nil ||
		deps.HashPassword == nil ||
		deps.IssueActivation == nil {
		return RegisterResult{}, deps.Errors.EngineNotReady
	}

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if deps.Validate != nil {
		if err := deps.Validate(in); err != nil {
			deps.MetricInc(deps.Metrics.Invalid)
			return RegisterResult{}, err
		}
	}

	if err := ensureFree(ctx, deps.FindByUsername, in.Username, deps.Errors.UsernameTaken, deps); err != nil {
		return RegisterResult{}, err
	}
	if err := ensureFree(ctx, deps.FindByEmail, in.Email, deps.Errors.EmailTaken, deps); err != nil {
		return RegisterResult{}, err
	}

	hash, err := deps.HashPassword(in.Password)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}

	account, err := deps.Create(ctx, AccountRecord{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    deps.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, deps.Errors.UsernameTaken) || errors.Is(err, deps.Errors.EmailTaken) {
			deps.MetricInc(deps.Metrics.Duplicate)
		}
		return RegisterResult{}, err
	}

	tok, err := deps.IssueActivation(ctx, account.ID)
	if err != nil {
		return RegisterResult{}, err
	}
	if deps.SendActivation != nil {
		deps.SendActivation(ctx, account, tok)
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, AuditRecord{
		EventType: deps.Events.AccountCreated,
		Success:   true,
		AccountID: account.ID,
		Username:  account.Username,
	})
	return RegisterResult{Account: account, ActivationToken: tok}, nil
}

func ensureFree(
	ctx context.Context,
	find func(context.Context, string) (AccountRecord, error),
	value string,
	taken error,
	deps RegisterDeps,
) error {
	_, err := find(ctx, value)
	switch {
	case err == nil:
		deps.MetricInc(deps.Metrics.Duplicate)
		return taken
	case errors.Is(err, deps.Errors.AccountNotFound):
		return nil
	default:
		return err
	}
}
