// Package token issues and redeems signed, expiring, URL-safe tokens.
//
// Tokens are HS256 JWTs in compact form. The payload map travels under the
// "dat" claim alongside "iat" and "exp". Redeem checks the signature against
// every key in the ring before it looks at any claim, so a tampered token
// reports [ErrBadSignature] whether or not it has also expired.
//
// Old secrets can be kept in Config.RetiredKeys after a rotation so tokens
// they signed stay redeemable until their own expiry. Signing always uses
// the active key.
package token
