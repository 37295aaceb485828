package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// HTTPMiddleware requires a valid bearer token and stores its claims in
// the request context.
func (v *JWTValidator) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			writeError(w, err)
			return
		}

		claims, err := v.ValidateToken(r.Context(), token)
		if err != nil {
			if !errors.Is(err, ErrInvalidToken) {
				slog.Error("Token validation failed", "error", err)
			}
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), claims)))
	})
}

// Require chains HTTPMiddleware and RequireRole.
func (v *JWTValidator) Require(roles ...string) func(http.Handler) http.Handler {
	guard := RequireRole(roles...)
	return func(next http.Handler) http.Handler {
		return v.HTTPMiddleware(guard(next))
	}
}

// GetClaims returns the claims stored by HTTPMiddleware, or nil.
func GetClaims(r *http.Request) *Claims {
	return FromContext(r.Context())
}

// RequireRole rejects requests whose claims carry none of the allowed
// roles. It must run after HTTPMiddleware.
func RequireRole(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r)
			if claims == nil {
				writeError(w, ErrMissingToken)
				return
			}
			if !claims.HasRole(allowedRoles...) {
				slog.Warn("Admin request without required role", "subject", claims.Subject, "roles", claims.Roles)
				writeError(w, fmt.Errorf("%w: need one of %s", ErrRoleRequired, strings.Join(allowedRoles, ", ")))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", fmt.Errorf("%w: expected Authorization: Bearer <token>", ErrMissingToken)
	}
	return token, nil
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="jobsum"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": err.Error()},
	})
}
