package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret []byte, canReveal bool) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		CanReveal: canReveal,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	secret := []byte("test-secret")
	token := signToken(t, secret, true)

	var gotReveal bool
	handler := authMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReveal = requestContextFrom(r.Context()).CanReveal()
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/logs/count", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !gotReveal {
		t.Fatal("expected CanReveal true for valid token with can_reveal claim")
	}
}

func TestAuthMiddlewareMissingTokenIsUnauthenticated(t *testing.T) {
	secret := []byte("test-secret")

	var rc RequestContext
	handler := authMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc = requestContextFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/logs/count", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected request to pass through, got %d", rr.Code)
	}
	if rc.CanReveal() {
		t.Fatal("expected CanReveal false with no token")
	}
}

func TestAuthMiddlewareInvalidSignatureIsUnauthenticated(t *testing.T) {
	secret := []byte("test-secret")
	token := signToken(t, []byte("wrong-secret"), true)

	var rc RequestContext
	handler := authMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc = requestContextFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/logs/count", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rc.CanReveal() {
		t.Fatal("expected CanReveal false for a token signed with the wrong secret")
	}
}
