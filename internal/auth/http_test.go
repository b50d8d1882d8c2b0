// ABOUTME: Tests for bearer token HTTP authentication middleware
// ABOUTME: Covers static token, JWT, and disabled-auth pass-through

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedHandler(t *testing.T, wantSubject string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := FromContext(r.Context())
		if wantSubject != "" {
			require.NotNil(t, caller)
			assert.Equal(t, wantSubject, caller.Subject)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(handler http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_DisabledPassesThrough(t *testing.T) {
	a := NewAuthenticator("", nil)
	assert.False(t, a.Enabled())

	handler := a.Middleware()(protectedHandler(t, ""))
	rec := doRequest(handler, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_StaticToken(t *testing.T) {
	a := NewAuthenticator("sekrit", nil)
	handler := a.Middleware()(protectedHandler(t, "api"))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer sekrit", http.StatusOK},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic sekrit", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"token is prefix of real one", "Bearer sekri", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(handler, tt.header)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMiddleware_JWT(t *testing.T) {
	secret := []byte("test-secret-key-that-is-long-enough")
	verifier := NewJWTVerifier(secret)
	a := NewAuthenticator("", verifier)

	token, err := verifier.Generate("user-42", time.Hour)
	require.NoError(t, err)

	handler := a.Middleware()(protectedHandler(t, "user-42"))
	rec := doRequest(handler, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_JWTWrongSecret(t *testing.T) {
	verifier := NewJWTVerifier([]byte("correct-secret-that-is-long-enough"))
	other := NewJWTVerifier([]byte("some-other-secret-that-is-longer"))
	a := NewAuthenticator("", verifier)

	token, err := other.Generate("user-42", time.Hour)
	require.NoError(t, err)

	handler := a.Middleware()(protectedHandler(t, ""))
	rec := doRequest(handler, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_BothMechanisms(t *testing.T) {
	verifier := NewJWTVerifier([]byte("test-secret-key-that-is-long-enough"))
	a := NewAuthenticator("sekrit", verifier)

	token, err := verifier.Generate("user-42", time.Hour)
	require.NoError(t, err)

	handler := a.Middleware()(protectedHandler(t, ""))
	assert.Equal(t, http.StatusOK, doRequest(handler, "Bearer sekrit").Code)
	assert.Equal(t, http.StatusOK, doRequest(handler, "Bearer "+token).Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(handler, "Bearer bogus").Code)
}

func TestExtractBearerToken(t *testing.T) {
	token, errMsg := extractBearerToken("Bearer abc123")
	assert.Equal(t, "abc123", token)
	assert.Empty(t, errMsg)

	_, errMsg = extractBearerToken("")
	assert.Equal(t, "missing authorization header", errMsg)

	_, errMsg = extractBearerToken("Token abc123")
	assert.Equal(t, "invalid authorization header format", errMsg)
}
