// Package auth provides bearer authentication for parley-gateway.
//
// # Authentication Methods
//
// The package supports two bearer credential types, checked in order:
//
//   - Static API token: Clients present the configured auth_token verbatim.
//     The comparison is constant-time.
//
//   - JWT Tokens: Clients present an HS256 JWT signed with the configured
//     jwt_secret. The "sub" claim identifies the caller.
//
// Either mechanism is optional. When neither is configured the middleware
// passes every request through unauthenticated, which is the expected mode
// for deployments behind a trusted reverse proxy.
//
// # Middleware
//
// Handlers are wrapped with the standard func(http.Handler) http.Handler
// shape:
//
//	authn := auth.NewAuthenticator(cfg.Auth.Token, verifier)
//	mux.Handle("/api/v1/", authn.Middleware()(apiHandler))
//
// On success the caller identity is attached to the request context and can
// be retrieved with FromContext.
package auth
