package cookies

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const (
	defaultHTTPPort  = "80"
	defaultHTTPSPort = "443"
)

// Request is what the jar needs from an outgoing request: its resolved URL
// and the header bag that receives Cookie and Cookie2.
type Request interface {
	URL() *url.URL
	Header() http.Header
}

// Response exposes the Set-Cookie and Set-Cookie2 header values of a response.
type Response interface {
	Header() http.Header
}

type httpRequest struct {
	req *http.Request
}

// WrapRequest adapts an *http.Request. The Host field is only consulted when
// the URL carries no host of its own.
func WrapRequest(req *http.Request) Request {
	return httpRequest{req: req}
}

func (r httpRequest) URL() *url.URL {
	if r.req.URL == nil {
		return &url.URL{Host: r.req.Host, Path: "/"}
	}
	if r.req.URL.Host == "" && r.req.Host != "" {
		u := *r.req.URL
		u.Host = r.req.Host
		return &u
	}
	return r.req.URL
}

func (r httpRequest) Header() http.Header {
	if r.req.Header == nil {
		r.req.Header = make(http.Header)
	}
	return r.req.Header
}

type httpResponse struct {
	resp *http.Response
}

// WrapResponse adapts an *http.Response.
func WrapResponse(resp *http.Response) Response {
	return httpResponse{resp: resp}
}

func (r httpResponse) Header() http.Header {
	return r.resp.Header
}

// HeaderResponse is a Response made of a bare header set.
type HeaderResponse http.Header

func (h HeaderResponse) Header() http.Header {
	return http.Header(h)
}

var ipv4RE = regexp.MustCompile(`\.\d+$`)

// requestHost returns the lower-cased host of the request URL, without port.
func requestHost(req Request) string {
	u := req.URL()
	host := u.Hostname()
	if host == "" {
		host = req.Header().Get("Host")
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
	}
	return strings.ToLower(host)
}

// effectiveRequestHost returns the request host and its effective form,
// which gets a ".local" suffix when the host has no dot.
func effectiveRequestHost(req Request) (string, string) {
	host := requestHost(req)
	erhn := host
	if !strings.Contains(host, ".") && !ipv4RE.MatchString(host) {
		erhn = host + ".local"
	}
	return host, erhn
}

func defaultPort(scheme string) string {
	if strings.EqualFold(scheme, "https") {
		return defaultHTTPSPort
	}
	return defaultHTTPPort
}

// requestPort returns the explicit URL port or the default port of the scheme.
func requestPort(req Request) string {
	u := req.URL()
	port := u.Port()
	if port == "" {
		return defaultPort(u.Scheme)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return defaultHTTPPort
	}
	return port
}

// requestPath returns the escaped request-URI: path, query and fragment.
func requestPath(req Request) string {
	u := req.URL()
	path := escapePath(u.EscapedPath())
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		path += "#" + u.EscapedFragment()
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// requestPathOnly is requestPath without query and fragment.
func requestPathOnly(req Request) string {
	path := escapePath(req.URL().EscapedPath())
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func isPathSafe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("_.-%/;:@&=+$,!~*'()", c) >= 0
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

// escapePath percent-quotes bytes outside the path-safe set and upper-cases
// existing %xx escapes.
func escapePath(path string) string {
	var b strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '%' && i+2 < len(path) && isHex(path[i+1]) && isHex(path[i+2]) {
			b.WriteByte('%')
			b.WriteString(strings.ToUpper(path[i+1 : i+3]))
			i += 2
			continue
		}
		if isPathSafe(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func isScheme(req Request, scheme string) bool {
	return strings.EqualFold(req.URL().Scheme, scheme)
}
