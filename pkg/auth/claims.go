// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package auth validates bearer JWTs for the admin endpoints.
//
// Tokens are verified against a JSON Web Key Set fetched from the
// configured provider and cached with periodic refresh:
//
//	server:
//	  auth:
//	    enabled: true
//	    jwks_url: "https://auth.example.com/.well-known/jwks.json"
//	    issuer: "https://auth.example.com"
//	    audience: "jobsum-admin"
//	    admin_role: admin
package auth

import (
	"context"
	"slices"
)

type claimsKey struct{}

// Claims are the parts of a validated token the admin API acts on.
type Claims struct {
	// Subject identifies the operator (sub claim). It is logged with
	// every admin action.
	Subject string

	// Roles merges the "role" string claim and the "roles" array claim.
	Roles []string

	// Extra holds the remaining private claims.
	Extra map[string]any
}

// HasRole reports whether the claims carry any of the given roles.
func (c *Claims) HasRole(roles ...string) bool {
	for _, role := range roles {
		if slices.Contains(c.Roles, role) {
			return true
		}
	}
	return false
}

func (c *Claims) addRoles(value any) {
	switch v := value.(type) {
	case string:
		if v != "" {
			c.Roles = append(c.Roles, v)
		}
	case []string:
		for _, role := range v {
			c.addRoles(role)
		}
	case []any:
		for _, role := range v {
			c.addRoles(role)
		}
	}
}

// FromContext returns the claims stored by HTTPMiddleware, or nil.
func FromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey{}).(*Claims)
	return claims
}

// NewContext returns ctx carrying claims.
func NewContext(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}
