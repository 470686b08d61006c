package cookies

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kv(key, value string) pair {
	return pair{key: key, value: value, hasValue: true}
}

func bare(key string) pair {
	return pair{key: key}
}

func TestSplitHeaderWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []string
		want  [][]pair
	}{
		{
			name:  "quoted values and cookie separator",
			input: []string{`foo="bar"; port="80,81"; discard, bar=baz`},
			want: [][]pair{
				{kv("foo", "bar"), kv("port", "80,81"), bare("discard")},
				{kv("bar", "baz")},
			},
		},
		{
			name:  "media type",
			input: []string{`text/html; charset="iso-8859-1"`},
			want:  [][]pair{{bare("text/html"), kv("charset", "iso-8859-1")}},
		},
		{
			name:  "backslash escapes",
			input: []string{`foo="b\"a\\r"`},
			want:  [][]pair{{kv("foo", `b"a\r`)}},
		},
		{
			name:  "comma without spaces",
			input: []string{"a=1,b=2"},
			want:  [][]pair{{kv("a", "1")}, {kv("b", "2")}},
		},
		{
			name:  "empty value",
			input: []string{"a=; b"},
			want:  [][]pair{{kv("a", ""), bare("b")}},
		},
		{
			name:  "leading junk",
			input: []string{"=; ;, foo"},
			want:  [][]pair{{bare("foo")}},
		},
		{
			name:  "several headers",
			input: []string{"a=1", "b=2; Version=1"},
			want:  [][]pair{{kv("a", "1")}, {kv("b", "2"), kv("Version", "1")}},
		},
		{
			name:  "nothing",
			input: []string{"", " , ;"},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, splitHeaderWords(tt.input))
		})
	}
}

func TestParseNSHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []pair
	}{
		{
			name:  "known attributes are lower-cased",
			input: `foo=bar; path=/; Domain=.acme.com; Expires="Wed, 09 Feb 1994 22:23:32 GMT"; secure`,
			want: []pair{
				kv("foo", "bar"), kv("path", "/"), kv("domain", ".acme.com"),
				kv("expires", "Wed, 09 Feb 1994 22:23:32 GMT"), bare("secure"), kv("version", "0"),
			},
		},
		{
			name:  "first pair is always the cookie",
			input: "Version=1; foo=bar",
			want:  []pair{kv("Version", "1"), kv("foo", "bar"), kv("version", "0")},
		},
		{
			name:  "whitespace around equals and quoted version",
			input: `foo = bar ; version="1"`,
			want:  []pair{kv("foo", "bar"), kv("version", "1")},
		},
		{
			name:  "values run to the next semicolon",
			input: "spam=a=b,c; Comment=keep \"quotes\"",
			want:  []pair{kv("spam", "a=b,c"), kv("Comment", `keep "quotes"`), kv("version", "0")},
		},
		{
			name:  "empty header",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := parseNSHeaders([]string{tt.input})
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func testRequest(t *testing.T, rawURL string) Request {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	return WrapRequest(req)
}

func newTestParser(now time.Time) (*parser, *[]string) {
	var rejected []string
	return &parser{
		log:      slog.New(slog.DiscardHandler),
		now:      now,
		rejected: func(reason string) { rejected = append(rejected, reason) },
	}, &rejected
}

func TestParserCookie(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)
	req := testRequest(t, "http://www.acme.com/shop/cart")

	t.Run("should take the first occurrence of an attribute", func(t *testing.T) {
		p, _ := newTestParser(now)
		got := p.cookies(parseNSHeaders([]string{"a=1; path=/one; path=/two"}), req, false)
		require.Len(t, got, 1)
		assert.Equal(t, "/one", got[0].Path)
		assert.True(t, got[0].PathSpecified)
	})

	t.Run("should let max-age win over expires", func(t *testing.T) {
		p, _ := newTestParser(now)
		got := p.cookies(parseNSHeaders([]string{
			"a=1; expires=Wed, 09 Feb 2099 22:23:32 GMT; max-age=60",
			"b=1; max-age=60; expires=Wed, 09 Feb 2099 22:23:32 GMT",
		}), req, false)
		require.Len(t, got, 2)
		for _, c := range got {
			require.NotNil(t, c.Expires)
			assert.Equal(t, now.Add(time.Minute), *c.Expires)
			assert.False(t, c.Discard)
		}
	})

	t.Run("should saturate a max-age too large for a duration", func(t *testing.T) {
		p, _ := newTestParser(now)
		got := p.cookies(parseNSHeaders([]string{
			"a=1; max-age=10000000000",
			"b=1; max-age=99999999999999999999",
			"c=1; max-age=-10000000000",
		}), req, false)
		require.Len(t, got, 3)
		for _, c := range got[:2] {
			require.NotNil(t, c.Expires)
			assert.True(t, c.Expires.After(now.AddDate(200, 0, 0)), c.Name)
			assert.False(t, c.IsExpired(now), c.Name)
		}
		require.NotNil(t, got[2].Expires)
		assert.True(t, got[2].IsExpired(now))
	})

	t.Run("should remember a cookie without a value", func(t *testing.T) {
		p, _ := newTestParser(now)
		got := p.cookies(parseNSHeaders([]string{"eggs", "spam=", "ham=1"}), req, false)
		require.Len(t, got, 3)
		assert.True(t, got[0].NoValue)
		assert.Empty(t, got[0].Value)
		assert.False(t, got[1].NoValue)
		assert.False(t, got[2].NoValue)

		got = p.cookies(splitHeaderWords([]string{"eggs; Version=1"}), req, true)
		require.Len(t, got, 1)
		assert.True(t, got[0].NoValue)
	})

	t.Run("should default the rfc2965 version to one", func(t *testing.T) {
		p, _ := newTestParser(now)
		got := p.cookies(splitHeaderWords([]string{"a=1"}), req, true)
		require.Len(t, got, 1)
		assert.Equal(t, 1, got[0].Version)
		assert.True(t, got[0].RFC2965)
		assert.Equal(t, "/shop/", got[0].Path)
	})

	t.Run("should escape an explicit path", func(t *testing.T) {
		p, _ := newTestParser(now)
		got := p.cookies(parseNSHeaders([]string{"a=1; path=/a b/%7e"}), req, false)
		require.Len(t, got, 1)
		assert.Equal(t, "/a%20b/%7E", got[0].Path)
	})

	t.Run("should lower-case and dot the domain", func(t *testing.T) {
		p, _ := newTestParser(now)
		got := p.cookies(parseNSHeaders([]string{"a=1; domain=ACME.com"}), req, false)
		require.Len(t, got, 1)
		assert.Equal(t, ".acme.com", got[0].Domain)
		assert.False(t, got[0].DomainInitialDot)
	})

	t.Run("should strip whitespace from the port list", func(t *testing.T) {
		p, _ := newTestParser(now)
		got := p.cookies(splitHeaderWords([]string{`a=1; port="80, 8080"`}), req, true)
		require.Len(t, got, 1)
		require.NotNil(t, got[0].Port)
		assert.Equal(t, "80,8080", *got[0].Port)
	})

	t.Run("should keep comments and unknown attributes", func(t *testing.T) {
		p, _ := newTestParser(now)
		got := p.cookies(splitHeaderWords([]string{
			`a=1; Comment="hi"; CommentURL="http://x/"; Flavour=mint; HttpOnly`,
		}), req, true)
		require.Len(t, got, 1)
		assert.Equal(t, "hi", got[0].Comment)
		assert.Equal(t, "http://x/", got[0].CommentURL)
		assert.Equal(t, []Attr{{Name: "Flavour", Value: "mint"}, {Name: "HttpOnly"}}, got[0].Rest)
	})

	t.Run("should reject malformed cookies", func(t *testing.T) {
		p, rejected := newTestParser(now)
		got := p.cookies(parseNSHeaders([]string{
			"a=1; domain",
			"b=1; max-age=soon",
			"c=1; version=x",
			"d=1; path",
		}), req, false)
		assert.Empty(t, got)
		assert.Equal(t, []string{ReasonMalformed, ReasonMalformed, ReasonMalformed, ReasonMalformed}, *rejected)
	})
}

func TestDefaultPathFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reqPath string
		version int
		want    string
	}{
		{"/", 0, "/"},
		{"/", 1, "/"},
		{"/blah", 0, "/"},
		{"/blah", 1, "/"},
		{"/blah/rhubarb", 0, "/blah"},
		{"/blah/rhubarb", 1, "/blah/"},
		{"/blah/rhubarb/", 0, "/blah/rhubarb"},
		{"/blah/rhubarb/", 1, "/blah/rhubarb/"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, defaultPath(tt.reqPath, tt.version), "%s v%d", tt.reqPath, tt.version)
	}
}

func TestRenderCookieHeader(t *testing.T) {
	t.Parallel()

	port := "80,8080"
	tests := []struct {
		name    string
		cookies []*Cookie
		want    string
	}{
		{
			name:    "netscape cookies go out verbatim",
			cookies: []*Cookie{{Name: "a", Value: `"x y"`}, {Name: "b", Value: "2"}},
			want:    `a="x y"; b=2`,
		},
		{
			name: "rfc2965 cookie with every mirror",
			cookies: []*Cookie{{
				Version: 1, Name: "a", Value: "1",
				Path: "/acme", PathSpecified: true,
				Domain: ".acme.com", DomainSpecified: true, DomainInitialDot: true,
				Port: &port, PortSpecified: true,
			}},
			want: `$Version="1"; a=1; $Path="/acme"; $Domain=".acme.com"; $Port="80,8080"`,
		},
		{
			name: "defaulted attributes are not mirrored",
			cookies: []*Cookie{{
				Version: 1, Name: "a", Value: "1", Path: "/", Domain: "www.acme.com",
			}},
			want: `$Version="1"; a=1`,
		},
		{
			name:    "bare port",
			cookies: []*Cookie{{Version: 1, Name: "a", Value: "1", PortSpecified: true}},
			want:    `$Version="1"; a=1; $Port`,
		},
		{
			name:    "higher versions still announce version one",
			cookies: []*Cookie{{Name: "eggs", NoValue: true}, {Version: 2, Name: "v", Value: "1"}},
			want:    `$Version="1"; eggs; v=1`,
		},
		{
			name:    "bare names carry no equals sign",
			cookies: []*Cookie{{Name: "eggs", NoValue: true}, {Name: "spam", Value: ""}},
			want:    `eggs; spam=`,
		},
		{
			name:    "escaped value",
			cookies: []*Cookie{{Version: 1, Name: "a", Value: `say "hi" \o/`}},
			want:    `$Version="1"; a=say \"hi\" \\o/`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, renderCookieHeader(tt.cookies))
		})
	}
}

func TestOrderedMap(t *testing.T) {
	t.Parallel()

	m := newOrderedMap[int]()
	m.set("a", 1)
	m.set("b", 2)
	m.set("c", 3)
	m.set("a", 10)

	collect := func() ([]string, []int) {
		var keys []string
		var values []int
		m.each(func(k string, v int) bool {
			keys = append(keys, k)
			values = append(values, v)
			return true
		})
		return keys, values
	}

	keys, values := collect()
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	assert.Equal(t, []int{10, 2, 3}, values)

	assert.True(t, m.delete("b"))
	assert.False(t, m.delete("b"))
	keys, _ = collect()
	assert.Equal(t, []string{"a", "c"}, keys)

	m.each(func(k string, _ int) bool {
		m.delete(k)
		return true
	})
	assert.Equal(t, 0, m.len())

	m.set("x", 1)
	m.set("y", 2)
	visited := 0
	m.each(func(string, int) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}
