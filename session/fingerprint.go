package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// AccountAttributes are the account fields a fingerprint covers. Changing
// any of them changes the fingerprint.
type AccountAttributes struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
}

// Fingerprint computes a keyed digest of attrs. The key keeps fingerprints
// from being recomputed by anyone who only sees the session blob.
func Fingerprint(key []byte, attrs AccountAttributes) [32]byte {
	mac := hmac.New(sha256.New, key)

	var id [8]byte
	binary.BigEndian.PutUint64(id[:], uint64(attrs.ID))
	mac.Write(id[:])
	writeField(mac, attrs.Username)
	writeField(mac, attrs.Email)
	writeField(mac, attrs.PasswordHash)

	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// ClientHash digests the request's user agent and IP. Both empty returns
// the zero value, which comparisons treat as "not captured".
func ClientHash(userAgent, ip string) [32]byte {
	if userAgent == "" && ip == "" {
		return [32]byte{}
	}

	h := sha256.New()
	writeField(h, userAgent)
	writeField(h, ip)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Equal compares two digests in constant time.
func Equal(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// ClientMatches reports whether the client context of a request matches
// the one captured at login. A zero digest on either side matches.
func ClientMatches(stored, current [32]byte) bool {
	var zero [32]byte
	if stored == zero || current == zero {
		return true
	}
	return Equal(stored, current)
}

// writeField length-prefixes s so field boundaries cannot shift.
func writeField(h hash.Hash, s string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}

// Ref returns a short, non-reversible reference to a session ID for logs
// and audit records. The session ID itself is a bearer credential.
func Ref(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:6])
}
