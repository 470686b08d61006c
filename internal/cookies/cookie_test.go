package cookies_test

import (
	"testing"
	"time"

	"github.com/UnknownOlympus/cookiejar/internal/cookies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	session := &cookies.Cookie{Name: "s"}
	assert.False(t, session.IsExpired(now))
	assert.True(t, session.IsSession())

	persistent := &cookies.Cookie{Name: "p", Expires: &later}
	assert.False(t, persistent.IsExpired(now))
	assert.True(t, persistent.IsExpired(later))
	assert.False(t, persistent.IsSession())

	discarded := &cookies.Cookie{Name: "d", Expires: &later, Discard: true}
	assert.True(t, discarded.IsSession())
}

func TestCookieNonstandardAttrs(t *testing.T) {
	t.Parallel()

	c := &cookies.Cookie{Name: "a", Rest: []cookies.Attr{{Name: "HttpOnly"}, {Name: "SameSite", Value: "Lax"}}}

	assert.True(t, c.HasNonstandardAttr("HttpOnly"))
	assert.False(t, c.HasNonstandardAttr("httponly"))

	value, ok := c.NonstandardAttr("SameSite")
	require.True(t, ok)
	assert.Equal(t, "Lax", value)

	c.SetNonstandardAttr("SameSite", "Strict")
	c.SetNonstandardAttr("Priority", "High")
	assert.Equal(t, []cookies.Attr{
		{Name: "HttpOnly"}, {Name: "SameSite", Value: "Strict"}, {Name: "Priority", Value: "High"},
	}, c.Rest)
}

func TestCookieClone(t *testing.T) {
	t.Parallel()

	port := "80"
	expires := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := &cookies.Cookie{
		Name: "a", Value: "1", Port: &port, PortSpecified: true, Expires: &expires,
		Rest: []cookies.Attr{{Name: "x", Value: "y"}},
	}

	clone := c.Clone()
	require.Equal(t, c, clone)

	*clone.Port = "8080"
	*clone.Expires = expires.Add(time.Hour)
	clone.Rest[0].Value = "z"

	assert.Equal(t, "80", *c.Port)
	assert.Equal(t, expires, *c.Expires)
	assert.Equal(t, "y", c.Rest[0].Value)
}

func TestCookieString(t *testing.T) {
	t.Parallel()

	port := "80,8080"
	assert.Equal(t, "<Cookie a=1 for .acme.com/shop>",
		(&cookies.Cookie{Name: "a", Value: "1", Domain: ".acme.com", Path: "/shop"}).String())
	assert.Equal(t, "<Cookie a=1 for .acme.com:80,8080/>",
		(&cookies.Cookie{Name: "a", Value: "1", Domain: ".acme.com", Path: "/", Port: &port}).String())
	assert.Equal(t, "<Cookie eggs for www.acme.com/>",
		(&cookies.Cookie{Name: "eggs", NoValue: true, Domain: "www.acme.com", Path: "/"}).String())
}
