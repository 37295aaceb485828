package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/jobsum/pkg/config"
)

func TestForwardedAddress_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		remoteAddr string
		trust      bool
		want       string
	}{
		{name: "single", header: "203.0.113.7", want: "203.0.113.7"},
		{name: "chain takes first", header: "203.0.113.7, 10.0.0.1, 10.0.0.2", want: "203.0.113.7"},
		{name: "trims whitespace", header: "  198.51.100.4 ,10.0.0.1", want: "198.51.100.4"},
		{name: "missing", want: Unknown},
		{name: "blank", header: "   ", want: Unknown},
		{name: "empty first entry", header: ", 10.0.0.1", want: Unknown},
		{name: "missing with trusted peer", remoteAddr: "192.0.2.1:54321", trust: true, want: "192.0.2.1"},
		{name: "header wins over peer", header: "203.0.113.7", remoteAddr: "192.0.2.1:54321", trust: true, want: "203.0.113.7"},
		{name: "untrusted peer ignored", remoteAddr: "192.0.2.1:54321", want: Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.header != "" {
				r.Header.Set("X-Forwarded-For", tt.header)
			}

			got := ForwardedAddress{TrustRemoteAddr: tt.trust}.Resolve(r)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestForwardedAddress_CustomHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-Real-IP", "203.0.113.9")
	r.Header.Set("X-Forwarded-For", "198.51.100.1")

	assert.Equal(t, "203.0.113.9", ForwardedAddress{Header: "X-Real-IP"}.Resolve(r))
}

func TestFromConfig(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7")

	cookie := FromConfig(config.RateLimitConfig{
		Identity: config.IdentityConfig{Strategy: config.IdentityCookie},
		Cookie:   config.CookieConfig{Name: "usage_log"},
	})
	assert.Equal(t, Unknown, cookie.Resolve(r))
	r.AddCookie(&http.Cookie{Name: "usage_log", Value: "W10"})
	assert.Equal(t, Browser, cookie.Resolve(r))

	addr := FromConfig(config.RateLimitConfig{
		Identity: config.IdentityConfig{Strategy: config.IdentityAddress, Header: "X-Forwarded-For"},
	})
	assert.Equal(t, "203.0.113.7", addr.Resolve(r))
}

func TestCookiePresence(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Equal(t, Unknown, CookiePresence("usage_log").Resolve(r))

	r.AddCookie(&http.Cookie{Name: "other", Value: "x"})
	assert.Equal(t, Unknown, CookiePresence("usage_log").Resolve(r))

	r.AddCookie(&http.Cookie{Name: "usage_log", Value: "not-a-usage-log"})
	assert.Equal(t, Browser, CookiePresence("usage_log").Resolve(r))
}

func TestIsKnown(t *testing.T) {
	assert.True(t, IsKnown("203.0.113.7"))
	assert.True(t, IsKnown(Browser))
	assert.False(t, IsKnown(Unknown))
	assert.False(t, IsKnown(""))
}
