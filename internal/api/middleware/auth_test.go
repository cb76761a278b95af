package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windgrid/windgrid/internal/api/middleware"
	"github.com/windgrid/windgrid/internal/auth"
)

func newTokenService(t *testing.T, now func() time.Time) *auth.TokenService {
	t.Helper()
	svc, err := auth.NewTokenService(auth.TokenConfig{SigningKey: "middleware-test-key", Now: now})
	require.NoError(t, err)
	return svc
}

func adminHandler(t *testing.T, tokens *auth.TokenService) (http.Handler, *string) {
	t.Helper()
	var subject string
	h := middleware.RequireScope(tokens, auth.ScopeAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = middleware.GetSubject(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))
	return h, &subject
}

func TestRequireScope_ValidToken(t *testing.T) {
	tokens := newTokenService(t, nil)
	handler, subject := adminHandler(t, tokens)

	token, _, err := tokens.Issue("ops@windgrid", time.Hour, auth.ScopeAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/refresh", http.NoBody)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "ops@windgrid", *subject)
}

func TestRequireScope_MalformedHeader(t *testing.T) {
	handler, _ := adminHandler(t, newTokenService(t, nil))

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"no bearer prefix", "token123"},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer "},
		{"just bearer", "Bearer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/admin/refresh", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
		})
	}
}

func TestRequireScope_RejectedTokens(t *testing.T) {
	tokens := newTokenService(t, nil)
	handler, _ := adminHandler(t, tokens)

	expired, _, err := newTokenService(t, func() time.Time { return time.Now().Add(-3 * time.Hour) }).
		Issue("ops", time.Hour, auth.ScopeAdmin)
	require.NoError(t, err)

	noScope, _, err := tokens.Issue("viewer", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		status int
		detail string
	}{
		{"garbage", "invalid.jwt.token", http.StatusUnauthorized, "invalid token"},
		{"expired", expired, http.StatusUnauthorized, "token has expired"},
		{"missing scope", noScope, http.StatusForbidden, "lacks scope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/admin/refresh", http.NoBody)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.detail)
		})
	}
}

func TestGetSubject_Anonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	assert.Empty(t, middleware.GetSubject(req.Context()))
}
