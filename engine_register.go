package goAccess

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/MrEthical07/goAccess/internal/flows"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ErrRegistrationDisabled is returned by Register when Registration.Enabled
// is false.
var ErrRegistrationDisabled = errors.New("registration disabled")

// Register creates an unconfirmed account, issues its activation token and
// hands the token to the Mailer.
//
// Field problems return an error wrapping ErrRegistrationInvalid and a
// validation.Errors map keyed by "username", "email" and "password".
// Duplicates return ErrUsernameTaken or ErrEmailTaken.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	if e == nil {
		return RegisterResult{}, ErrEngineNotReady
	}
	if !e.config.Registration.Enabled {
		return RegisterResult{}, ErrRegistrationDisabled
	}

	res, err := flows.RunRegister(ctx, flows.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}, e.flowDeps.Register)
	if err != nil {
		if errors.Is(err, ErrRegistrationInvalid) ||
			errors.Is(err, ErrUsernameTaken) ||
			errors.Is(err, ErrEmailTaken) {
			return RegisterResult{}, err
		}
		return RegisterResult{}, infraError("register", err)
	}

	return RegisterResult{
		Account:         fromFlowAccount(res.Account),
		ActivationToken: res.ActivationToken,
	}, nil
}

// ChangePassword replaces the password of accountID after checking the
// current one. A wrong current password returns ErrInvalidCredentials; a new
// password outside the length policy returns ErrPasswordPolicy.
//
// Under strong protection the account fingerprint changes with the hash, so
// every existing session of the account stops resolving.
func (e *Engine) ChangePassword(ctx context.Context, accountID int64, current, next string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	err := flows.RunChangePassword(ctx, accountID, current, next, e.flowDeps.ChangePassword)
	if err == nil ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrPasswordPolicy) ||
		errors.Is(err, ErrAccountNotFound) {
		return err
	}
	return infraError("change_password", err)
}

func (e *Engine) validateRegistration(in flows.RegisterInput) error {
	err := validation.Errors{
		"username": validation.Validate(in.Username,
			validation.Required,
			validation.RuneLength(e.config.Registration.UsernameMinLength, e.config.Registration.UsernameMaxLength),
			validation.Match(usernamePattern),
		),
		"email": validation.Validate(in.Email,
			validation.Required,
			validation.Length(3, 254),
			is.Email,
		),
		"password": e.passwordRule(in.Password),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegistrationInvalid, err)
	}
	return nil
}

func (e *Engine) passwordRule(pw string) error {
	return validation.Validate(pw,
		validation.Required,
		validation.Length(e.config.Password.MinLength, e.config.Password.MaxLength),
	)
}

func (e *Engine) validatePassword(pw string) error {
	if err := e.passwordRule(pw); err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordPolicy, err)
	}
	return nil
}
