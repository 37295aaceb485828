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

// Package identity derives the key usage is counted against from an
// incoming request.
package identity

import (
	"net"
	"net/http"
	"strings"

	"github.com/kadirpekel/jobsum/pkg/config"
)

const (
	// Unknown is returned when no identity can be derived. Requests with
	// this identity are never admitted.
	Unknown = "unknown"

	// Browser is the identity of a client whose usage log travels in its
	// own cookie. The log itself scopes the count.
	Browser = "browser"

	// DefaultHeader carries the forwarded client address chain.
	DefaultHeader = "X-Forwarded-For"
)

// Resolver derives an identity from a request.
type Resolver interface {
	Resolve(r *http.Request) string
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(r *http.Request) string

// Resolve calls f(r).
func (f ResolverFunc) Resolve(r *http.Request) string {
	return f(r)
}

// ForwardedAddress resolves the originating client address from the first
// entry of a forwarded-address header.
type ForwardedAddress struct {
	// Header name. Default: X-Forwarded-For
	Header string

	// TrustRemoteAddr falls back to the peer address when the header is
	// missing or blank.
	TrustRemoteAddr bool
}

// Resolve returns the first comma-separated entry of the header, trimmed.
// A missing or blank header yields Unknown unless the peer address is
// trusted.
func (f ForwardedAddress) Resolve(r *http.Request) string {
	header := f.Header
	if header == "" {
		header = DefaultHeader
	}

	if id := FirstForwarded(r.Header.Get(header)); id != "" {
		return id
	}

	if f.TrustRemoteAddr {
		if host := remoteHost(r.RemoteAddr); host != "" {
			return host
		}
	}
	return Unknown
}

// FirstForwarded returns the first entry of a comma-separated address
// chain, or "" when it is blank.
func FirstForwarded(value string) string {
	first, _, _ := strings.Cut(value, ",")
	return strings.TrimSpace(first)
}

func remoteHost(addr string) string {
	if addr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.TrimSpace(addr)
	}
	return host
}

// CookiePresence resolves to Browser when the request carries the named
// cookie and to Unknown otherwise. A client that never returns the cookie
// it was issued cannot keep a usage log and is refused.
type CookiePresence string

// Resolve reports Browser if the cookie is present, even when its value
// is malformed.
func (c CookiePresence) Resolve(r *http.Request) string {
	if _, err := r.Cookie(string(c)); err != nil {
		return Unknown
	}
	return Browser
}

// FromConfig builds the resolver for the configured strategy.
func FromConfig(cfg config.RateLimitConfig) Resolver {
	if cfg.Identity.Strategy == config.IdentityCookie {
		return CookiePresence(cfg.Cookie.Name)
	}
	return ForwardedAddress{Header: cfg.Identity.Header, TrustRemoteAddr: cfg.Identity.TrustRemoteAddr}
}

// IsKnown reports whether id may be admitted.
func IsKnown(id string) bool {
	return id != "" && id != Unknown
}
