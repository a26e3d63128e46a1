package middleware

import (
	"net/http"

	goAccess "github.com/MrEthical07/goAccess"
)

// SetSessionCookie writes the session cookie for a successful login.
// Remembered sessions get Expires; short sessions end with the browser.
func SetSessionCookie(w http.ResponseWriter, cfg goAccess.SessionConfig, out goAccess.LoginOutcome) {
	c := &http.Cookie{
		Name:     cfg.CookieName,
		Value:    out.SessionToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if out.Persistent {
		c.Expires = out.Expires
	}
	http.SetCookie(w, c)
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, cfg goAccess.SessionConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionToken returns the token the request's CurrentPrincipal resolves,
// which reflects a Login or Logout earlier in the same request.
func SessionToken(r *http.Request) string {
	return goAccess.CurrentPrincipalFromContext(r.Context()).Token()
}
