// Package authtest serves a JWKS endpoint and signs tokens for tests.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	Issuer   = "https://issuer.test"
	Audience = "jobsum-admin"
	keyID    = "test-key-id"
)

// Provider is a fake identity provider.
type Provider struct {
	JWKSURL string

	privateKey jwk.Key
}

// NewProvider starts a JWKS server that lives until the test ends.
func NewProvider(t testing.TB) *Provider {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	private, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("failed to wrap private key: %v", err)
	}
	_ = private.Set(jwk.KeyIDKey, keyID)
	_ = private.Set(jwk.AlgorithmKey, jwa.RS256)

	public, err := jwk.PublicKeyOf(private)
	if err != nil {
		t.Fatalf("failed to derive public key: %v", err)
	}

	keyset := jwk.NewSet()
	if err := keyset.AddKey(public); err != nil {
		t.Fatalf("failed to build JWKS: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(keyset)
	}))
	t.Cleanup(server.Close)

	return &Provider{
		JWKSURL:    server.URL + "/.well-known/jwks.json",
		privateKey: private,
	}
}

// Token signs a token for Issuer and Audience, valid for an hour, with the
// given extra claims.
func (p *Provider) Token(t testing.TB, subject string, claims map[string]any) string {
	t.Helper()
	return p.sign(t, subject, Issuer, Audience, time.Now().Add(time.Hour), claims)
}

// ExpiredToken signs a token that expired a minute ago.
func (p *Provider) ExpiredToken(t testing.TB, subject string) string {
	t.Helper()
	return p.sign(t, subject, Issuer, Audience, time.Now().Add(-time.Minute), nil)
}

// TokenFor signs a token with a custom issuer and audience.
func (p *Provider) TokenFor(t testing.TB, subject, issuer, audience string) string {
	t.Helper()
	return p.sign(t, subject, issuer, audience, time.Now().Add(time.Hour), nil)
}

func (p *Provider) sign(t testing.TB, subject, issuer, audience string, expires time.Time, claims map[string]any) string {
	t.Helper()

	token := jwt.New()
	set := func(key string, value any) {
		if err := token.Set(key, value); err != nil {
			t.Fatalf("failed to set claim %s: %v", key, err)
		}
	}
	set(jwt.IssuerKey, issuer)
	set(jwt.AudienceKey, audience)
	set(jwt.SubjectKey, subject)
	set(jwt.IssuedAtKey, expires.Add(-2*time.Hour))
	set(jwt.ExpirationKey, expires)
	for key, value := range claims {
		set(key, value)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, p.privateKey))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return string(signed)
}
