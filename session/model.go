package session

import (
	"fmt"
	"strings"
)

// ProtectionLevel controls how a stored session is re-checked on each
// request.
type ProtectionLevel uint8

const (
	// ProtectionNone honours a session without any freshness check.
	ProtectionNone ProtectionLevel = iota
	// ProtectionBasic keeps a session across account changes but marks it
	// non-fresh when the client context changes.
	ProtectionBasic
	// ProtectionStrong destroys a session when the account fingerprint or
	// the client context changes.
	ProtectionStrong
)

func (p ProtectionLevel) String() string {
	switch p {
	case ProtectionNone:
		return "none"
	case ProtectionBasic:
		return "basic"
	case ProtectionStrong:
		return "strong"
	default:
		return fmt.Sprintf("protection(%d)", uint8(p))
	}
}

// Valid reports whether p is one of the defined levels.
func (p ProtectionLevel) Valid() bool {
	return p <= ProtectionStrong
}

// ParseProtectionLevel maps "none", "basic" or "strong" (any case) to a level.
func ParseProtectionLevel(s string) (ProtectionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return ProtectionNone, nil
	case "basic":
		return ProtectionBasic, nil
	case "strong":
		return ProtectionStrong, nil
	default:
		return 0, fmt.Errorf("unknown session protection level %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p ProtectionLevel) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid session protection level %d", uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText parses the textual form produced by MarshalText.
func (p *ProtectionLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseProtectionLevel(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// RememberClass is the lifetime class chosen at login.
type RememberClass uint8

const (
	// RememberShort sessions last until the browser closes or the short TTL.
	RememberShort RememberClass = iota
	// RememberExtended sessions outlive the browser ("remember me").
	RememberExtended
)

func (r RememberClass) String() string {
	if r == RememberExtended {
		return "extended"
	}
	return "short"
}

// Session is the server-side record of an authenticated login.
type Session struct {
	SessionID string
	AccountID int64

	Remember   RememberClass
	Protection ProtectionLevel

	// Fingerprint is an HMAC over the account attributes captured at login.
	Fingerprint [32]byte
	// ClientHash digests the user agent and client IP seen at login. All
	// zeroes means no client context was captured.
	ClientHash [32]byte

	CreatedAt int64
	ExpiresAt int64
}
