package goAccess

import (
	"errors"

	"github.com/MrEthical07/goAccess/internal/rate"
	"github.com/MrEthical07/goAccess/session"
	"github.com/MrEthical07/goAccess/token"
)

var (
	// ErrAccountNotFound is returned by a UserDirectory when no account
	// matches the lookup key.
	ErrAccountNotFound = errors.New("account not found")
	// ErrUsernameTaken is returned when a username is already registered.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrEmailTaken is returned when an email address is already registered.
	ErrEmailTaken = errors.New("email already taken")
	// ErrInvalidCredentials is returned by ChangePassword when the current
	// password does not verify.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRegistrationInvalid wraps field validation failures of Register.
	// The wrapped error is a validation.Errors map keyed by field name.
	ErrRegistrationInvalid = errors.New("invalid registration request")
	// ErrPasswordPolicy is returned when a new password fails the length rules.
	ErrPasswordPolicy = errors.New("password does not satisfy policy")
	// ErrEngineNotReady is returned when an Engine method runs on a nil or
	// partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrMailerRequired is returned by ResendActivation without a Mailer.
	ErrMailerRequired = errors.New("mailer required")
)

// Errors surfaced unchanged from the component packages.
var (
	// ErrTokenMalformed reports a token that is not a well-formed signed token.
	ErrTokenMalformed = token.ErrMalformed
	// ErrTokenBadSignature reports a token whose signature does not verify.
	ErrTokenBadSignature = token.ErrBadSignature
	// ErrTokenExpired reports an authentic token past its expiry.
	ErrTokenExpired = token.ErrExpired
	// ErrSessionStoreUnavailable wraps Redis failures of the session store.
	ErrSessionStoreUnavailable = session.ErrRedisUnavailable
	// ErrThrottleUnavailable wraps Redis failures of the login throttle.
	ErrThrottleUnavailable = rate.ErrRedisUnavailable
)
