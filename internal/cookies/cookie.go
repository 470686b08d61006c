package cookies

import (
	"fmt"
	"slices"
	"time"
)

// Attr is a non-standard cookie-attribute, kept with its original case.
type Attr struct {
	Name  string
	Value string
}

// Cookie represents one stored cookie and its RFC 2965 attributes.
//
// Version 0 is a Netscape cookie, version 1 an RFC 2965 (or RFC 2109) cookie.
// Domain may carry a leading dot; DomainSpecified records whether the domain
// came from the Set-Cookie header or was defaulted from the request host.
type Cookie struct {
	Version int
	Name    string
	Value   string
	// NoValue marks a cookie set without '=': it is sent back as the bare name.
	NoValue bool

	// Port is nil when the attribute was absent or present without a value.
	Port          *string
	PortSpecified bool

	Domain           string
	DomainSpecified  bool
	DomainInitialDot bool

	Path          string
	PathSpecified bool

	Secure bool
	// Expires is nil for session cookies.
	Expires *time.Time
	Discard bool

	Comment    string
	CommentURL string

	// RFC2965 is set for cookies received through Set-Cookie2.
	RFC2965 bool
	// RFC2109 is set for Version=1 cookies received through Set-Cookie.
	RFC2109 bool

	Rest []Attr
}

// IsExpired reports whether the cookie has a persistent expiry at or before now.
func (c *Cookie) IsExpired(now time.Time) bool {
	return c.Expires != nil && !c.Expires.After(now)
}

// IsSession reports whether the cookie must go away at the end of the session.
func (c *Cookie) IsSession() bool {
	return c.Expires == nil || c.Discard
}

// HasNonstandardAttr reports whether a non-standard attribute with exactly this name is present.
func (c *Cookie) HasNonstandardAttr(name string) bool {
	_, ok := c.NonstandardAttr(name)
	return ok
}

// NonstandardAttr returns the value of the first non-standard attribute with this name.
func (c *Cookie) NonstandardAttr(name string) (string, bool) {
	for _, a := range c.Rest {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetNonstandardAttr replaces the value of an existing attribute or appends a new one.
func (c *Cookie) SetNonstandardAttr(name, value string) {
	for i := range c.Rest {
		if c.Rest[i].Name == name {
			c.Rest[i].Value = value
			return
		}
	}
	c.Rest = append(c.Rest, Attr{Name: name, Value: value})
}

// Clone returns a deep copy of the cookie.
func (c *Cookie) Clone() *Cookie {
	out := *c
	if c.Port != nil {
		port := *c.Port
		out.Port = &port
	}
	if c.Expires != nil {
		expires := *c.Expires
		out.Expires = &expires
	}
	out.Rest = slices.Clone(c.Rest)
	return &out
}

func (c *Cookie) String() string {
	var port string
	if c.Port != nil {
		port = ":" + *c.Port
	}
	nameValue := c.Name + "=" + c.Value
	if c.NoValue {
		nameValue = c.Name
	}
	return fmt.Sprintf("<Cookie %s for %s%s%s>", nameValue, c.Domain, port, c.Path)
}
