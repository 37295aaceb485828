package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageLogCodec(t *testing.T) {
	in := []time.Time{at(20), at(10), epoch.Add(250 * time.Millisecond)}

	value := EncodeUsageLog(in)
	assert.NotContains(t, value, "=")
	assert.NotContains(t, value, ";")

	out, err := DecodeUsageLog(value)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.True(t, out[0].Equal(epoch.Add(250*time.Millisecond)))
	assert.True(t, out[1].Equal(at(10)))
	assert.True(t, out[2].Equal(at(20)))
}

func TestDecodeUsageLog(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    int
		wantErr bool
	}{
		{name: "empty", value: "", want: 0},
		{name: "bare json", value: "[1700000000, 1700000001.5]", want: 2},
		{name: "empty array", value: "[]", want: 0},
		{name: "garbage", value: "!!not-a-cookie!!", wantErr: true},
		{name: "object", value: `{"a":1}`, wantErr: true},
		{name: "strings", value: `["x"]`, wantErr: true},
		{name: "negative", value: "[-1]", wantErr: true},
		{name: "padded base64", value: "WzEsMl0=", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeUsageLog(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestNewCookieStore_FailsClosed(t *testing.T) {
	store := NewCookieStore("%%%")
	assert.True(t, store.Invalid())
	assert.Equal(t, 0, store.Len())

	live, err := store.Query(context.Background(), "browser", at(-10))
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestCookieStore_FromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	store := CookieStoreFromRequest(req, DefaultCookieName)
	assert.False(t, store.Invalid())
	assert.Equal(t, 0, store.Len())

	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: EncodeUsageLog([]time.Time{at(1), at(2)})})
	store = CookieStoreFromRequest(req, DefaultCookieName)
	assert.Equal(t, 2, store.Len())
	assert.False(t, store.Modified())
}

func TestCookieStore_CheckRewritesCookie(t *testing.T) {
	ctx := context.Background()
	store := NewCookieStore(EncodeUsageLog([]time.Time{at(0), at(10)}))

	l, clock := newTestLimiter(t, store, 5, time.Hour)
	clock.At(3605)

	d, err := l.Check(ctx, "browser")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Count)
	assert.True(t, store.Modified())
	assert.Equal(t, 0, store.Len())

	require.NoError(t, l.Record(ctx, "browser"))
	assert.Equal(t, 1, store.Len())
}

func TestCookieStore_Cookie(t *testing.T) {
	store := NewCookieStore("")
	require.NoError(t, store.Insert(context.Background(), UsageEvent{Timestamp: at(1)}))

	c := store.Cookie(CookieOptions{MaxAge: 24 * time.Hour, Secure: true})
	assert.Equal(t, DefaultCookieName, c.Name)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 86400, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	back, err := DecodeUsageLog(c.Value)
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.True(t, back[0].Equal(at(1)))

	named := store.Cookie(CookieOptions{Name: "quota"})
	assert.Equal(t, "quota", named.Name)
}
