package token

import "errors"

var (
	// ErrMalformed is returned when a token cannot be parsed, or when a
	// correctly signed token carries claims this package cannot read.
	ErrMalformed = errors.New("token malformed")
	// ErrBadSignature is returned when no key in the ring produced the
	// token's signature.
	ErrBadSignature = errors.New("token signature invalid")
	// ErrExpired is returned for an authentic token whose expiry has passed.
	ErrExpired = errors.New("token expired")
)
