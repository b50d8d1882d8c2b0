// ABOUTME: Request context plumbing for authenticated caller identity
// ABOUTME: Provides WithCaller/FromContext helpers used by HTTP middleware

package auth

import "context"

type contextKey struct{}

// Caller describes how a request was authenticated
type Caller struct {
	Subject string // Token subject, or "api" for the static token
	Method  string // "bearer" or "jwt"
}

// WithCaller returns a context carrying the authenticated caller
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext extracts the authenticated caller, or nil if unauthenticated
func FromContext(ctx context.Context) *Caller {
	c, _ := ctx.Value(contextKey{}).(*Caller)
	return c
}
