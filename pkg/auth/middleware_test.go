package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMiddleware(t *testing.T) {
	v, provider := newTestValidator(t)

	var seen *Claims
	handler := v.Require("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetClaims(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{name: "missing header", wantStatus: http.StatusUnauthorized, wantCode: "unauthorized"},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized, wantCode: "unauthorized"},
		{name: "invalid token", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantCode: "unauthorized"},
		{name: "wrong role", header: "Bearer " + provider.Token(t, "u", map[string]any{"role": "viewer"}), wantStatus: http.StatusForbidden, wantCode: "forbidden"},
		{name: "admin", header: "Bearer " + provider.Token(t, "u", map[string]any{"role": "admin"}), wantStatus: http.StatusNoContent},
		{name: "admin in roles", header: "Bearer " + provider.Token(t, "u", map[string]any{"roles": []string{"viewer", "admin"}}), wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/admin/usage/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.True(t, seen.HasRole("admin"))
				return
			}

			assert.Nil(t, seen)
			var body struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestRequireRole_WithoutClaims(t *testing.T) {
	handler := RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
