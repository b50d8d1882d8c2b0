// ABOUTME: HTTP middleware for bearer token authentication on API endpoints
// ABOUTME: Accepts a static API token or an HS256 JWT, whichever is configured

package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Authenticator validates bearer credentials on incoming requests. A static
// token and a JWT verifier can be configured together; either one grants
// access. With neither configured, authentication is disabled.
type Authenticator struct {
	token    []byte
	verifier TokenVerifier
}

// NewAuthenticator creates an Authenticator. Pass an empty token or a nil
// verifier to disable that mechanism.
func NewAuthenticator(staticToken string, verifier TokenVerifier) *Authenticator {
	a := &Authenticator{verifier: verifier}
	if staticToken != "" {
		a.token = []byte(staticToken)
	}
	return a
}

// Enabled reports whether any credential check is configured
func (a *Authenticator) Enabled() bool {
	return len(a.token) > 0 || a.verifier != nil
}

// authenticate checks presented credentials against both mechanisms
func (a *Authenticator) authenticate(presented string) *Caller {
	if len(a.token) > 0 {
		// Constant-time comparison so token length and prefix don't leak
		if subtle.ConstantTimeCompare(a.token, []byte(presented)) == 1 {
			return &Caller{Subject: "api", Method: "bearer"}
		}
	}
	if a.verifier != nil {
		if sub, err := a.verifier.Verify(presented); err == nil {
			return &Caller{Subject: sub, Method: "jwt"}
		}
	}
	return nil
}

// Middleware creates an HTTP middleware that rejects requests without valid
// credentials. When no mechanism is configured, requests pass through
// unauthenticated.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				unauthorized(w, errMsg)
				return
			}

			caller := a.authenticate(token)
			if caller == nil {
				unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, `{"error":"`+msg+`"}`, http.StatusUnauthorized)
}
