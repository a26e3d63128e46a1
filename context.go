package goAccess

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type currentPrincipalContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for per-IP login throttling, the session client-context hash and audit
// records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. It feeds the
// session client-context hash.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

// WithCurrentPrincipal attaches the request-scoped principal holder to ctx.
// Login and Logout called with the returned context reset it.
func WithCurrentPrincipal(ctx context.Context, cp *CurrentPrincipal) context.Context {
	return context.WithValue(ctx, currentPrincipalContextKey{}, cp)
}

// CurrentPrincipalFromContext returns the holder attached by
// WithCurrentPrincipal, or nil.
func CurrentPrincipalFromContext(ctx context.Context) *CurrentPrincipal {
	if ctx == nil {
		return nil
	}

	cp, _ := ctx.Value(currentPrincipalContextKey{}).(*CurrentPrincipal)
	return cp
}

// PrincipalFromContext resolves the principal of the current request. It
// returns Anonymous when no holder is attached or resolution fails.
func PrincipalFromContext(ctx context.Context) Principal {
	cp := CurrentPrincipalFromContext(ctx)
	if cp == nil {
		return Anonymous
	}
	p, err := cp.Get(ctx)
	if err != nil {
		return Anonymous
	}
	return p
}
