package goAccess

import (
	"net/url"
	"strings"
)

// SafeRedirect returns next when it is a same-origin path and fallback
// otherwise. A safe target starts with exactly one "/", has no scheme or
// host, and contains no backslash or control character.
func SafeRedirect(next, fallback string) string {
	if !isSafeRedirect(next) {
		return fallback
	}
	return next
}

func (e *Engine) safeRedirect(next string) string {
	return SafeRedirect(next, e.config.Session.DefaultRedirect)
}

func isSafeRedirect(next string) bool {
	if next == "" || next[0] != '/' {
		return false
	}
	if len(next) > 1 && (next[1] == '/' || next[1] == '\\') {
		return false
	}
	if strings.ContainsRune(next, '\\') {
		return false
	}
	for _, r := range next {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}

	u, err := url.Parse(next)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == "" && u.User == nil
}
