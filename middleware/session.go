package middleware

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	goAccess "github.com/MrEthical07/goAccess"
)

// Options tunes Session.
type Options struct {
	// TrustForwardedFor takes the client IP from the first X-Forwarded-For
	// entry. Enable it only behind a proxy that overwrites the header.
	TrustForwardedFor bool
	// AllowBearer also accepts the session token from an
	// "Authorization: Bearer" header when no cookie is present.
	AllowBearer bool
}

// Session returns middleware that records the client IP and user agent and
// installs a CurrentPrincipal for the request's session cookie. Resolution
// is deferred until a handler asks for the principal.
func Session(engine *goAccess.Engine, opts Options) func(http.Handler) http.Handler {
	cookieName := engine.Config().Session.CookieName

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = goAccess.WithClientIP(ctx, clientIP(r, opts.TrustForwardedFor))
			ctx = goAccess.WithUserAgent(ctx, r.UserAgent())

			token := ""
			if c, err := r.Cookie(cookieName); err == nil {
				token = c.Value
			} else if opts.AllowBearer {
				token, _ = bearerToken(r.Header.Get("Authorization"))
			}

			ctx = goAccess.WithCurrentPrincipal(ctx, engine.NewCurrentPrincipal(token))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth returns middleware that lets authenticated requests through
// and redirects anonymous ones to Session.LoginPath with a next parameter.
// A session store or directory failure answers 503.
func RequireAuth(engine *goAccess.Engine) func(http.Handler) http.Handler {
	return guard(engine, false)
}

// RequireFresh is RequireAuth that also rejects non-fresh principals, for
// handlers that change credentials or spend money.
func RequireFresh(engine *goAccess.Engine) func(http.Handler) http.Handler {
	return guard(engine, true)
}

func guard(engine *goAccess.Engine, fresh bool) func(http.Handler) http.Handler {
	loginPath := engine.Config().Session.LoginPath

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cp := goAccess.CurrentPrincipalFromContext(r.Context())
			if cp == nil {
				http.Error(w, "session middleware not installed", http.StatusInternalServerError)
				return
			}

			p, err := cp.Get(r.Context())
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			if p.IsAnonymous() || (fresh && !p.Fresh()) {
				http.Redirect(w, r, LoginRedirect(loginPath, r.URL.RequestURI()), http.StatusSeeOther)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoginRedirect returns loginPath with next as its query parameter.
func LoginRedirect(loginPath, next string) string {
	if next == "" || next == loginPath {
		return loginPath
	}
	return loginPath + "?next=" + url.QueryEscape(next)
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
