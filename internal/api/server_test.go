package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/access"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/auth"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/config"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/database"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/metrics"
)

// flakyStore fails listings and pings on demand
type flakyStore struct {
	*database.MemoryStore
	failList bool
	failPing bool
}

func (f *flakyStore) ListUsers(ctx context.Context) ([]database.User, error) {
	if f.failList {
		return nil, errors.New("connection reset by peer")
	}
	return f.MemoryStore.ListUsers(ctx)
}

func (f *flakyStore) Ping(ctx context.Context) error {
	if f.failPing {
		return errors.New("connection refused")
	}
	return f.MemoryStore.Ping(ctx)
}

type testServer struct {
	*Server
	store *flakyStore
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			MaxBodySize: 1 << 20,
			CORSOrigins: []string{"http://localhost:5173"},
		},
		Monitoring: config.MonitoringConfig{MetricsEnabled: true},
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := &flakyStore{MemoryStore: database.NewMemoryStore()}
	authn, err := auth.NewProvider(config.AuthConfig{
		JWTSecret:  "0123456789abcdef0123456789abcdef",
		Issuer:     "test",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, store, auth.NewMemoryTokenStore())
	require.NoError(t, err)

	m := metrics.NewMetrics("")
	svc := access.NewService(store, store, authn, access.WithBcryptCost(bcrypt.MinCost), access.WithMetrics(m))

	hashed, err := database.HashPassword("admin-pass", bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, store.CreateUser(context.Background(), &database.User{
		Username:     "admin@x.com",
		Email:        "admin@x.com",
		PasswordHash: hashed,
		IsSuperuser:  true,
		IsActive:     true,
	}))

	return &testServer{Server: NewServer(testConfig(), svc, store, m), store: store}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T, email, password string) (string, string) {
	t.Helper()
	rec := ts.do(t, "POST", "/api/login/", "", map[string]string{"username": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Message string `json:"message"`
		Tokens  struct {
			Access  string `json:"access"`
			Refresh string `json:"refresh"`
		} `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Login successful", body.Message)
	return body.Tokens.Access, body.Tokens.Refresh
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestPermissionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.login(t, "admin@x.com", "admin-pass")

	rec := ts.do(t, "POST", "/api/users/create/", admin, map[string]string{"email": "a@x.com", "password": "p"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, "User created successfully", created["message"])
	userID := int64(created["user_id"].(float64))

	rec = ts.do(t, "PUT", fmt.Sprintf("/api/users/%d/permissions/", userID), admin, map[string]interface{}{
		"page": "clients", "can_view": true, "can_edit": false, "can_create": false, "can_delete": false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Permissions updated successfully", decode(t, rec)["message"])

	member, _ := ts.login(t, "a@x.com", "p")
	rec = ts.do(t, "GET", "/api/me/permissions/", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var me struct {
		User access.UserPayload `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "a@x.com", me.User.Email)
	assert.False(t, me.User.IsSuperuser)
	require.Len(t, me.User.Permissions, 1)
	assert.Equal(t, "clients", string(me.User.Permissions[0].Page))
	assert.True(t, me.User.Permissions[0].CanView)
	assert.False(t, me.User.Permissions[0].CanEdit)

	// members cannot list users
	rec = ts.do(t, "GET", "/api/users/", member, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "unauthorized", decode(t, rec)["code"])

	rec = ts.do(t, "GET", "/api/users/", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Users []access.UserListEntry `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Users, 2)

	rec = ts.do(t, "DELETE", fmt.Sprintf("/api/users/%d/delete/", userID), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User deleted successfully", decode(t, rec)["message"])

	perms, err := ts.store.ListForUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, perms)

	rec = ts.do(t, "DELETE", fmt.Sprintf("/api/users/%d/delete/", userID), admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode(t, rec)["code"])

	// the deleted user's access token no longer verifies
	rec = ts.do(t, "GET", "/api/me/permissions/", member, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.login(t, "admin@x.com", "admin-pass")

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"missing token", "GET", "/api/me/permissions/", "", nil, http.StatusUnauthorized, "unauthenticated"},
		{"garbage token", "GET", "/api/users/", "not-a-jwt", nil, http.StatusUnauthorized, "unauthenticated"},
		{"wrong password", "POST", "/api/login/", "", map[string]string{"username": "admin@x.com", "password": "nope"}, http.StatusUnauthorized, "invalid_credentials"},
		{"unknown email", "POST", "/api/login/", "", map[string]string{"username": "ghost@x.com", "password": "nope"}, http.StatusUnauthorized, "invalid_credentials"},
		{"empty login body", "POST", "/api/login/", "", nil, http.StatusBadRequest, "validation_error"},
		{"malformed json", "POST", "/api/login/", "", `{"username":`, http.StatusBadRequest, "bad_request"},
		{"trailing data", "POST", "/api/login/", "", `{"username":"a"} {}`, http.StatusBadRequest, "bad_request"},
		{"invalid page", "PUT", "/api/users/1/permissions/", admin, map[string]interface{}{"page": "bogus", "can_view": true}, http.StatusBadRequest, "validation_error"},
		{"unknown user permissions", "PUT", "/api/users/999/permissions/", admin, map[string]interface{}{"page": "clients"}, http.StatusNotFound, "not_found"},
		{"overflowing user id", "DELETE", "/api/users/99999999999999999999/delete/", admin, nil, http.StatusNotFound, "not_found"},
		{"duplicate email", "POST", "/api/users/create/", admin, map[string]string{"email": "ADMIN@x.com", "password": "p"}, http.StatusConflict, "conflict"},
		{"unknown route", "GET", "/api/nowhere/", "", nil, http.StatusNotFound, "not_found"},
		{"wrong method", "GET", "/api/login/", "", nil, http.StatusMethodNotAllowed, "method_not_allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantCode, decode(t, rec)["code"])
		})
	}

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		wrong := ts.do(t, "POST", "/api/login/", "", map[string]string{"username": "admin@x.com", "password": "nope"})
		unknown := ts.do(t, "POST", "/api/login/", "", map[string]string{"username": "ghost@x.com", "password": "nope"})
		assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	})

	t.Run("validation errors list fields", func(t *testing.T) {
		rec := ts.do(t, "POST", "/api/users/create/", admin, map[string]string{"email": ""})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var body errorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		fields := make([]string, 0, len(body.Errors))
		for _, fe := range body.Errors {
			fields = append(fields, fe.Field)
		}
		assert.ElementsMatch(t, []string{"email", "password"}, fields)
	})

	t.Run("internal errors do not leak", func(t *testing.T) {
		ts.store.failList = true
		defer func() { ts.store.failList = false }()

		rec := ts.do(t, "GET", "/api/users/", admin, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "internal_error", body["code"])
		assert.NotContains(t, rec.Body.String(), "connection reset")
	})

	t.Run("oversized body", func(t *testing.T) {
		big := `{"username":"` + strings.Repeat("a", 2<<20) + `"}`
		rec := ts.do(t, "POST", "/api/login/", "", big)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "request_too_large", decode(t, rec)["code"])
	})
}

func TestAuthorizationPrecedesBodyParsing(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.login(t, "admin@x.com", "admin-pass")

	rec := ts.do(t, "POST", "/api/users/create/", admin, map[string]string{"email": "m@x.com", "password": "p"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	memberID := int64(decode(t, rec)["user_id"].(float64))
	member, _ := ts.login(t, "m@x.com", "p")
	ownPermissions := fmt.Sprintf("/api/users/%d/permissions/", memberID)
	big := `{"email":"` + strings.Repeat("a", 2<<20) + `"}`

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"anonymous malformed permission", "PUT", "/api/users/1/permissions/", "", `{not json`, http.StatusUnauthorized, "unauthenticated"},
		{"anonymous malformed create", "POST", "/api/users/create/", "", `{not json`, http.StatusUnauthorized, "unauthenticated"},
		{"anonymous oversized create", "POST", "/api/users/create/", "", big, http.StatusUnauthorized, "unauthenticated"},
		{"garbage token malformed create", "POST", "/api/users/create/", "not-a-jwt", `{not json`, http.StatusUnauthorized, "unauthenticated"},
		{"member malformed own permission", "PUT", ownPermissions, member, `{not json`, http.StatusForbidden, "unauthorized"},
		{"member malformed create", "POST", "/api/users/create/", member, `{not json`, http.StatusForbidden, "unauthorized"},
		{"member oversized create", "POST", "/api/users/create/", member, big, http.StatusForbidden, "unauthorized"},
		{"superuser malformed create", "POST", "/api/users/create/", admin, `{not json`, http.StatusBadRequest, "bad_request"},
		{"superuser oversized create", "POST", "/api/users/create/", admin, big, http.StatusRequestEntityTooLarge, "request_too_large"},
		{"malformed refresh", "POST", "/api/token/refresh/", "", `{not json`, http.StatusUnauthorized, "unauthenticated"},
		{"malformed logout", "POST", "/api/logout/", "", `{not json`, http.StatusUnauthorized, "unauthenticated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode(t, rec)["code"])
		})
	}
}

func TestPasswordLengthLimit(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.login(t, "admin@x.com", "admin-pass")

	rec := ts.do(t, "POST", "/api/users/create/", admin, map[string]string{
		"email":    "long@x.com",
		"password": strings.Repeat("p", database.MaxPasswordBytes+1),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation_error", body.Code)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "password", body.Errors[0].Field)

	rec = ts.do(t, "POST", "/api/users/create/", admin, map[string]string{
		"email":    "long@x.com",
		"password": strings.Repeat("p", database.MaxPasswordBytes),
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRefreshAndLogout(t *testing.T) {
	ts := newTestServer(t)
	_, refresh := ts.login(t, "admin@x.com", "admin-pass")

	rec := ts.do(t, "POST", "/api/token/refresh/", "", map[string]string{"refresh": refresh})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	assert.NotEmpty(t, pair.Access)
	assert.NotEqual(t, refresh, pair.Refresh)

	// a rotated refresh token cannot be replayed
	rec = ts.do(t, "POST", "/api/token/refresh/", "", map[string]string{"refresh": refresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, "POST", "/api/logout/", "", map[string]string{"refresh": pair.Refresh})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "POST", "/api/token/refresh/", "", map[string]string{"refresh": pair.Refresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPages(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.login(t, "admin@x.com", "admin-pass")

	rec := ts.do(t, "GET", "/api/pages/", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Pages []struct {
			Page  string `json:"page"`
			Label string `json:"label"`
		} `json:"pages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Pages, 10)
	assert.Equal(t, "products_list", body.Pages[0].Page)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)

	t.Run("preflight from dashboard", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/api/users/1/permissions/", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", "PUT")
		req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
		rec := httptest.NewRecorder()
		ts.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("foreign origin gets no grant", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec := httptest.NewRecorder()
		ts.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("security headers on every response", func(t *testing.T) {
		rec := ts.do(t, "GET", "/api/nowhere/", "", nil)
		assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	})
}

func TestHealthAndReadiness(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = ts.do(t, "GET", "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.store.failPing = true
	rec = ts.do(t, "GET", "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "store-unavailable", decode(t, rec)["status"])
	ts.store.failPing = false

	rec = ts.do(t, "GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")

	require.NoError(t, ts.Close())
	assert.True(t, ts.IsShuttingDown())

	rec = ts.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = ts.do(t, "GET", "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestCloseReleasesResourcesInReverseOrder(t *testing.T) {
	ts := newTestServer(t)

	var order []string
	ts.AddCloser(closerFunc(func() error { order = append(order, "store"); return nil }))
	ts.AddCloser(closerFunc(func() error { order = append(order, "tokens"); return errors.New("redis gone") }))

	err := ts.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis gone")
	assert.Equal(t, []string{"tokens", "store"}, order)
}
