package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT claims shape the core accepts. The core does not mint
// tokens: an external auth layer issues them against a shared signing
// secret, and authMiddleware below only verifies and reads them at the
// request boundary.
type Claims struct {
	jwt.RegisteredClaims
	CanReveal bool `json:"can_reveal"`
}

// RequestContext carries the caller identity a handler needs: whether the
// caller is authenticated and, if so, whether they're authorized to reveal
// redacted fields.
type RequestContext struct {
	Claims *Claims
}

// CanReveal reports whether rc authorizes GET /logs/{id}?reveal=true.
func (rc RequestContext) CanReveal() bool {
	return rc.Claims != nil && rc.Claims.CanReveal
}

type requestContextKey struct{}

func contextWithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// requestContextFrom returns the RequestContext attached to ctx, or the
// zero value (unauthenticated) if none was attached.
func requestContextFrom(ctx context.Context) RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(RequestContext)
	return rc
}

// authMiddleware parses a bearer JWT against secret, if present, and
// attaches the resulting RequestContext to the request. A missing or
// invalid token simply yields an unauthenticated RequestContext rather
// than rejecting the request; individual handlers (e.g. the reveal path)
// enforce their own authorization requirement.
func authMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := RequestContext{}
			if tokenStr, ok := bearerToken(r); ok && len(secret) > 0 {
				var claims Claims
				_, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
					return secret, nil
				}, jwt.WithValidMethods([]string{"HS256"}))
				if err == nil {
					rc.Claims = &claims
				}
			}
			next.ServeHTTP(w, r.WithContext(contextWithRequestContext(r.Context(), rc)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}
