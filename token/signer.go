package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTTL applies when Issue is called with a non-positive ttl.
	DefaultTTL = 3600 * time.Second

	minSecretBytes = 32
)

// Config configures a [Signer].
type Config struct {
	// Secret is the active HMAC key. It signs every new token.
	Secret []byte
	// KeyID is written to the "kid" header of issued tokens.
	KeyID string
	// RetiredKeys holds earlier secrets, by kid, that still verify.
	RetiredKeys map[string][]byte
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

type claims struct {
	Data map[string]any `json:"dat"`
	jwt.RegisteredClaims
}

type ringKey struct {
	kid    string
	secret []byte
}

// Signer issues and redeems tokens.
//
// Signer instances are immutable after construction and safe for concurrent use.
type Signer struct {
	kid  string
	ring []ringKey
	now  func() time.Time
}

// NewSigner builds a Signer around cfg.Secret and its retired keys. It
// fails when a secret is shorter than 32 bytes or a retired kid is empty or
// equal to KeyID.
func NewSigner(cfg Config) (*Signer, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, errors.New("token secret must be >= 32 bytes")
	}
	kid := strings.TrimSpace(cfg.KeyID)

	ring := make([]ringKey, 0, 1+len(cfg.RetiredKeys))
	ring = append(ring, ringKey{kid: kid, secret: append([]byte(nil), cfg.Secret...)})
	for retiredKID, secret := range cfg.RetiredKeys {
		if strings.TrimSpace(retiredKID) == "" {
			return nil, errors.New("retired key map contains empty kid")
		}
		if retiredKID == kid {
			return nil, errors.New("retired key kid collides with active KeyID")
		}
		if len(secret) < minSecretBytes {
			return nil, errors.New("retired token secret must be >= 32 bytes")
		}
		ring = append(ring, ringKey{kid: retiredKID, secret: append([]byte(nil), secret...)})
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Signer{kid: kid, ring: ring, now: now}, nil
}

// Issue signs payload with the active key. The token expires ttl after
// issue, rounded up to the next whole second; a non-positive ttl means
// [DefaultTTL]. Issue fails only when
// payload cannot be encoded as JSON.
func (s *Signer) Issue(payload map[string]any, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if payload == nil {
		payload = map[string]any{}
	}

	now := s.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Data: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(ceilSecond(now.Add(ttl))),
		},
	})
	if s.kid != "" {
		tok.Header["kid"] = s.kid
	}

	return tok.SignedString(s.ring[0].secret)
}

// Redeem returns the payload of an authentic, unexpired token. Numbers in
// the payload come back as json.Number. Errors are always one of
// [ErrMalformed], [ErrBadSignature] or [ErrExpired].
func (s *Signer) Redeem(tokenStr string) (map[string]any, error) {
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, ErrMalformed
	}

	// Strict decoding rejects non-zero trailing bits, so every signature
	// has exactly one accepted encoding.
	sig, err := jwt.NewParser(jwt.WithStrictDecoding()).DecodeSegment(parts[2])
	if err != nil {
		return nil, ErrBadSignature
	}

	key := s.match(parts[0]+"."+parts[1], sig)
	if key == nil {
		return nil, ErrBadSignature
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithJSONNumber(),
		jwt.WithStrictDecoding(),
	)
	var c claims
	_, err = parser.ParseWithClaims(tokenStr, &c, func(*jwt.Token) (interface{}, error) {
		return key, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	default:
		return nil, ErrMalformed
	}

	if c.Data == nil {
		return nil, ErrMalformed
	}
	return c.Data, nil
}

// ceilSecond rounds t up to a whole second. "exp" has second precision and
// must never fall before issue + ttl.
func ceilSecond(t time.Time) time.Time {
	r := t.Truncate(time.Second)
	if r.Before(t) {
		r = r.Add(time.Second)
	}
	return r
}

// match tries every ring key so the work done does not depend on which
// key, if any, signed the token.
func (s *Signer) match(signingString string, sig []byte) []byte {
	var found []byte
	for _, k := range s.ring {
		if jwt.SigningMethodHS256.Verify(signingString, sig, k.secret) == nil && found == nil {
			found = k.secret
		}
	}
	return found
}
