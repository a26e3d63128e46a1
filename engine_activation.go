package goAccess

import (
	"context"

	"github.com/MrEthical07/goAccess/internal/flows"
)

// IssueActivation returns a signed token that confirms accountID when
// redeemed before Activation.TTL elapses. It does not check that the account
// exists.
func (e *Engine) IssueActivation(ctx context.Context, accountID int64) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	return flows.RunIssueActivation(ctx, accountID, e.flowDeps.Activation)
}

// RedeemActivation confirms the account named by an activation token.
//
// Malformed, forged and expired tokens yield ActivationInvalid with the
// token error in Reason. Unknown and already confirmed accounts have their
// own statuses and are never mutated. Redeeming the same token twice yields
// ActivationConfirmed then ActivationAlreadyConfirmed. The error is non-nil
// only for directory faults.
func (e *Engine) RedeemActivation(ctx context.Context, activationToken string) (ActivationOutcome, error) {
	if e == nil {
		return ActivationOutcome{}, ErrEngineNotReady
	}

	res, err := flows.RunRedeemActivation(ctx, activationToken, e.flowDeps.Activation)
	if err != nil {
		return ActivationOutcome{}, infraError("redeem_activation", err)
	}
	return ActivationOutcome{
		Status:    res.Status,
		AccountID: res.AccountID,
		Reason:    res.Reason,
	}, nil
}

// ResendActivation sends a fresh activation token to the unconfirmed account
// registered under email. Unknown and confirmed addresses succeed without
// sending anything, so the call does not reveal which addresses exist.
func (e *Engine) ResendActivation(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.mailer == nil {
		return ErrMailerRequired
	}
	if err := flows.RunResendActivation(ctx, email, e.flowDeps.Resend); err != nil {
		return infraError("resend_activation", err)
	}
	return nil
}

func (e *Engine) sendActivation(ctx context.Context, account flows.AccountRecord, tok string) {
	if e.mailer == nil {
		return
	}
	err := e.mailer.SendActivation(ctx, ActivationMessage{
		AccountID: account.ID,
		Username:  account.Username,
		Email:     account.Email,
		Token:     tok,
	})
	if err != nil {
		e.metricInc(MetricMailDropped)
		e.warn("goAccess: activation mail not queued", "account_id", account.ID, "error", err)
	}
}
