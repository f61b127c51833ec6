package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{name: "no header", header: "", expected: ""},
		{name: "bearer token", header: "Bearer abc.def.ghi", expected: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc", expected: "abc"},
		{name: "extra whitespace", header: "  Bearer   abc  ", expected: "abc"},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", expected: ""},
		{name: "scheme only", header: "Bearer", expected: ""},
		{name: "raw token", header: "abc.def.ghi", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/me/permissions/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			if got := BearerToken(req); got != tt.expected {
				t.Errorf("Expected token %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestBearerTokenMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{name: "token stored in context", header: "Bearer token-1", expected: "token-1"},
		{name: "missing header passes through", header: "", expected: ""},
		{name: "wrong scheme passes through", header: "Token token-1", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = TokenFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/api/users/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			BearerTokenMiddleware()(handler).ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
			}
			if seen != tt.expected {
				t.Errorf("Expected token %q in context, got %q", tt.expected, seen)
			}
		})
	}
}

func TestTokenFromContext(t *testing.T) {
	if got := TokenFromContext(context.Background()); got != "" {
		t.Errorf("Expected empty token from bare context, got %q", got)
	}

	ctx := WithToken(context.Background(), "abc")
	if got := TokenFromContext(ctx); got != "abc" {
		t.Errorf("Expected token abc, got %q", got)
	}

	// a plain string key must not collide with the typed key
	ctx = context.WithValue(context.Background(), "bearer_token", "other") //nolint:staticcheck
	if got := TokenFromContext(ctx); got != "" {
		t.Errorf("Expected untyped key to be ignored, got %q", got)
	}
}
