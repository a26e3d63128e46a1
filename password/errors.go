package password

import "errors"

var (
	// ErrInvalidFormat is returned by [Argon2.Check] for hashes that are not
	// well-formed PHC or bcrypt strings.
	ErrInvalidFormat = errors.New("invalid PHC format")
	// ErrUnsupportedAlgorithm is returned by [Argon2.Check] for PHC strings
	// naming an algorithm other than argon2id.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	// ErrPasswordTooLong is returned when plaintext exceeds
	// Config.MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
)
