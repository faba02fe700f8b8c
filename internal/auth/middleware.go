package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string like
// context.WithValue(ctx, "email", e), ANY package that knows the string "email"
// can read or shadow your value. Using a package-private type prevents collisions:
// only THIS package can create a key of type contextKey.
type contextKey string

const emailKey contextKey = "email"

// CookieName is the HttpOnly cookie that carries the sign-in token.
const CookieName = "token"

var errNoToken = errors.New("auth: no token presented")

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the JWT from the "token" cookie or an "Authorization: Bearer"
// header, validates it, and stores the caller's email in the request context.
// If the token is missing or invalid, it returns 401 Unauthorized and stops
// the request chain.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email, err := extractEmail(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithEmail(r.Context(), email)))
		})
	}
}

// OptionalAuth extracts the caller's identity if a valid token is present,
// but does NOT block the request if it's missing or invalid.
//
// The forum mounts this on every route. Whether an anonymous caller may
// proceed is decided per operation by the access rules in the service
// layer, not by which middleware the route happens to use.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if email, err := extractEmail(r, tokens); err == nil {
				r = r.WithContext(WithEmail(r.Context(), email))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithEmail returns a copy of ctx carrying a verified caller email.
// Handler tests use it to simulate a signed-in request.
func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey, email)
}

// EmailFromContext retrieves the authenticated caller's email.
// Returns ("", false) if the request is anonymous.
func EmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(emailKey).(string)
	return email, ok && email != ""
}

// extractEmail prefers the cookie set at sign-in and falls back to a bearer
// header for API clients.
func extractEmail(r *http.Request, tokens *TokenService) (string, error) {
	if tokens == nil {
		return "", errNoToken
	}
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return tokens.Validate(cookie.Value)
	}
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && token != "" {
			return tokens.Validate(strings.TrimSpace(token))
		}
	}
	return "", errNoToken
}
