package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const bearerTokenKey contextKey = "bearer_token"

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively; anything else yields "".
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// BearerTokenMiddleware stores the request's bearer token in its context.
// Requests without one pass through untouched so that the handler can decide
// whether authentication is required.
func BearerTokenMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := BearerToken(r); token != "" {
				r = r.WithContext(WithToken(r.Context(), token))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithToken returns a copy of ctx carrying token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey, token)
}

// TokenFromContext returns the bearer token stored by BearerTokenMiddleware.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(bearerTokenKey).(string)
	return token
}
