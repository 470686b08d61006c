package cookies

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/UnknownOlympus/cookiejar/internal/lib/logger/sl"
)

var (
	// ErrNotFound is returned by Clear when the named domain, path or cookie is not stored.
	ErrNotFound = errors.New("cookie not found")
	// ErrTooManyKeys is returned by Clear when given more than domain, path and name.
	ErrTooManyKeys = errors.New("clear takes at most domain, path and name")
)

// Observer is told about jar activity. internal/metrics implements it.
type Observer interface {
	CookieStored(c *Cookie)
	CookieRejected(reason string)
	CookiesReturned(n int)
	CookiesExpired(n int)
}

type nopObserver struct{}

func (nopObserver) CookieStored(*Cookie)  {}
func (nopObserver) CookieRejected(string) {}
func (nopObserver) CookiesReturned(int)   {}
func (nopObserver) CookiesExpired(int)    {}

type (
	nameMap   = orderedMap[*Cookie]
	pathMap   = orderedMap[*nameMap]
	domainMap = orderedMap[*pathMap]
)

// Jar stores cookies keyed by domain, path and name, and iterates them in
// insertion order at each level. All methods are safe for concurrent use.
type Jar struct {
	mu       sync.Mutex
	policy   Policy
	cookies  *domainMap
	log      *slog.Logger
	now      func() time.Time
	observer Observer
}

// Option configures a Jar.
type Option func(*Jar)

// WithLogger sets the jar logger.
func WithLogger(log *slog.Logger) Option {
	return func(j *Jar) { j.log = log }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Jar) { j.now = now }
}

// WithObserver attaches an Observer.
func WithObserver(o Observer) Option {
	return func(j *Jar) { j.observer = o }
}

// New returns an empty jar. A nil policy means NewDefaultPolicy().
func New(policy Policy, opts ...Option) *Jar {
	if policy == nil {
		policy = NewDefaultPolicy()
	}
	j := &Jar{
		policy:   policy,
		cookies:  newOrderedMap[*pathMap](),
		log:      slog.New(slog.DiscardHandler),
		now:      time.Now,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Jar) initLogger(opn string) *slog.Logger {
	return j.log.With(slog.String("op", opn))
}

// Policy returns the current policy.
func (j *Jar) Policy() Policy {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.policy
}

// SetPolicy replaces the policy used for later operations.
func (j *Jar) SetPolicy(p Policy) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.policy = p
}

// makeCookies parses every cookie header relevant to the policy, including
// candidates that are already expired.
func (j *Jar) makeCookies(resp Response, req Request, now time.Time) []*Cookie {
	header := resp.Header()
	rfc2965Headers := header.Values(headerSetCookie2)
	nsHeaders := header.Values(headerSetCookie)
	rfc2965, netscape := j.policy.RFC2965(), j.policy.Netscape()

	p := &parser{
		log:      j.initLogger("Jar.MakeCookies"),
		now:      now,
		rejected: j.observer.CookieRejected,
	}

	var cookies []*Cookie
	if rfc2965 && len(rfc2965Headers) > 0 {
		cookies = p.cookies(splitHeaderWords(rfc2965Headers), req, true)
	}
	if !netscape || len(nsHeaders) == 0 {
		return cookies
	}

	nsCookies := p.cookies(parseNSHeaders(nsHeaders), req, false)
	asNetscape := j.policy.RFC2109AsNetscape()
	for _, c := range nsCookies {
		if c.Version == 1 {
			c.RFC2109 = true
			if asNetscape {
				c.Version = 0
			}
		}
	}

	// An RFC 2965 cookie wins over a Netscape cookie with the same key.
	if len(cookies) > 0 {
		seen := make(map[[3]string]bool, len(cookies))
		for _, c := range cookies {
			seen[[3]string{c.Domain, c.Path, c.Name}] = true
		}
		nsCookies = slices.DeleteFunc(nsCookies, func(c *Cookie) bool {
			if seen[[3]string{c.Domain, c.Path, c.Name}] {
				j.observer.CookieRejected(ReasonShadowed)
				return true
			}
			return false
		})
	}
	return append(cookies, nsCookies...)
}

// MakeCookies parses the Set-Cookie and Set-Cookie2 headers of resp using req
// for defaults. It does not touch the stored cookies; candidates that are
// already expired are left out.
func (j *Jar) MakeCookies(resp Response, req Request) []*Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	cookies := j.makeCookies(resp, req, now)
	return slices.DeleteFunc(cookies, func(c *Cookie) bool { return c.IsExpired(now) })
}

// ExtractCookies stores every cookie from resp that the policy accepts.
// An accepted cookie that is already expired (max-age=0, past expires)
// deletes the stored cookie with the same key instead.
func (j *Jar) ExtractCookies(resp Response, req Request) {
	j.mu.Lock()
	defer j.mu.Unlock()

	log := j.initLogger("Jar.ExtractCookies")
	now := j.now()
	for _, c := range j.makeCookies(resp, req, now) {
		if !j.policy.SetOK(c, req) {
			j.observer.CookieRejected(ReasonPolicy)
			continue
		}
		if c.IsExpired(now) {
			if j.clear(c.Domain, c.Path, c.Name) == nil {
				log.Debug("expiring cookie", sl.Cookie(c.Domain, c.Path, c.Name))
				j.observer.CookiesExpired(1)
			}
			continue
		}
		j.setCookie(c)
	}
}

// SetCookie stores a copy of c without consulting the policy, replacing any
// cookie with the same domain, path and name.
func (j *Jar) SetCookie(c *Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.setCookie(c.Clone())
}

// SetCookieIfOK stores a copy of c if the policy accepts it for req.
func (j *Jar) SetCookieIfOK(c *Cookie, req Request) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.policy.SetOK(c, req) {
		j.observer.CookieRejected(ReasonPolicy)
		return false
	}
	j.setCookie(c.Clone())
	return true
}

func (j *Jar) setCookie(c *Cookie) {
	paths, ok := j.cookies.get(c.Domain)
	if !ok {
		paths = newOrderedMap[*nameMap]()
		j.cookies.set(c.Domain, paths)
	}
	names, ok := paths.get(c.Path)
	if !ok {
		names = newOrderedMap[*Cookie]()
		paths.set(c.Path, names)
	}
	names.set(c.Name, c)
	j.observer.CookieStored(c)
}

// Get returns a copy of the cookie stored under domain, path and name.
func (j *Jar) Get(domain, path, name string) (*Cookie, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	paths, ok := j.cookies.get(domain)
	if !ok {
		return nil, false
	}
	names, ok := paths.get(path)
	if !ok {
		return nil, false
	}
	c, ok := names.get(name)
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// cookiesForRequest selects the stored cookies to send with req, most
// specific path first. The slice aliases stored cookies.
func (j *Jar) cookiesForRequest(req Request) []*Cookie {
	var selected []*Cookie
	j.cookies.each(func(domain string, paths *pathMap) bool {
		if !j.policy.DomainReturnOK(domain, req) {
			return true
		}
		paths.each(func(path string, names *nameMap) bool {
			if !j.policy.PathReturnOK(path, req) {
				return true
			}
			names.each(func(_ string, c *Cookie) bool {
				if j.policy.ReturnOK(c, req) {
					selected = append(selected, c)
				}
				return true
			})
			return true
		})
		return true
	})
	slices.SortStableFunc(selected, func(a, b *Cookie) int {
		return cmp.Compare(len(b.Path), len(a.Path))
	})
	return selected
}

// CookiesForRequest returns copies of the cookies AddCookieHeader would send.
func (j *Jar) CookiesForRequest(req Request) []*Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.clearExpired(j.now())
	selected := j.cookiesForRequest(req)
	out := make([]*Cookie, len(selected))
	for i, c := range selected {
		out[i] = c.Clone()
	}
	return out
}

// AddCookieHeader drops expired cookies, then writes the Cookie header for
// req unless it already has one. When the policy speaks RFC 2965 and none of
// the selected cookies is version 1 or later, Cookie2 advertises support.
func (j *Jar) AddCookieHeader(req Request) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.clearExpired(j.now())
	cookies := j.cookiesForRequest(req)
	header := req.Header()

	if len(cookies) > 0 && header.Get(headerCookie) == "" {
		header.Set(headerCookie, renderCookieHeader(cookies))
	}
	if j.policy.RFC2965() && !j.policy.HideCookie2() &&
		header.Get(headerCookie2) == "" && highestVersion(cookies) < 1 {
		header.Set(headerCookie2, advertiseCookie2)
	}
	j.observer.CookiesReturned(len(cookies))
}

// Clear removes cookies. With no arguments it empties the jar; with a domain,
// a domain and path, or a domain, path and name it removes just that part.
func (j *Jar) Clear(keys ...string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.clear(keys...)
}

func (j *Jar) clear(keys ...string) error {
	switch len(keys) {
	case 0:
		j.cookies = newOrderedMap[*pathMap]()
		return nil
	case 1:
		if !j.cookies.delete(keys[0]) {
			return fmt.Errorf("domain %q: %w", keys[0], ErrNotFound)
		}
		return nil
	case 2, 3:
	default:
		return ErrTooManyKeys
	}

	domain, path := keys[0], keys[1]
	paths, ok := j.cookies.get(domain)
	if !ok {
		return fmt.Errorf("domain %q: %w", domain, ErrNotFound)
	}
	if len(keys) == 2 {
		if !paths.delete(path) {
			return fmt.Errorf("path %q in %q: %w", path, domain, ErrNotFound)
		}
	} else {
		names, found := paths.get(path)
		if !found || !names.delete(keys[2]) {
			return fmt.Errorf("cookie %q in %q%s: %w", keys[2], domain, path, ErrNotFound)
		}
		if names.len() == 0 {
			paths.delete(path)
		}
	}
	if paths.len() == 0 {
		j.cookies.delete(domain)
	}
	return nil
}

// removeIf deletes every stored cookie matching fn and returns how many went.
func (j *Jar) removeIf(fn func(c *Cookie) bool) int {
	removed := 0
	j.cookies.each(func(domain string, paths *pathMap) bool {
		paths.each(func(path string, names *nameMap) bool {
			names.each(func(name string, c *Cookie) bool {
				if fn(c) {
					names.delete(name)
					removed++
				}
				return true
			})
			if names.len() == 0 {
				paths.delete(path)
			}
			return true
		})
		if paths.len() == 0 {
			j.cookies.delete(domain)
		}
		return true
	})
	return removed
}

// ClearSessionCookies removes cookies without a persistent expiry and
// cookies marked Discard.
func (j *Jar) ClearSessionCookies() {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := j.removeIf((*Cookie).IsSession)
	j.initLogger("Jar.ClearSessionCookies").Debug("session cookies cleared", slog.Int("count", n))
}

// ClearExpiredCookies removes cookies whose expiry has passed. Selection
// does this on its own before every request.
func (j *Jar) ClearExpiredCookies() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.clearExpired(j.now())
}

func (j *Jar) clearExpired(now time.Time) {
	n := j.removeIf(func(c *Cookie) bool { return c.IsExpired(now) })
	if n > 0 {
		j.observer.CookiesExpired(n)
	}
}

// Cookies returns copies of all stored cookies in iteration order.
func (j *Jar) Cookies() []*Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*Cookie
	j.cookies.each(func(_ string, paths *pathMap) bool {
		paths.each(func(_ string, names *nameMap) bool {
			names.each(func(_ string, c *Cookie) bool {
				out = append(out, c.Clone())
				return true
			})
			return true
		})
		return true
	})
	return out
}

// All iterates over a snapshot of the jar: domains, then paths, then names,
// each in insertion order.
func (j *Jar) All() iter.Seq[*Cookie] {
	snapshot := j.Cookies()
	return func(yield func(*Cookie) bool) {
		for _, c := range snapshot {
			if !yield(c) {
				return
			}
		}
	}
}

// Len returns the number of stored cookies.
func (j *Jar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	j.cookies.each(func(_ string, paths *pathMap) bool {
		paths.each(func(_ string, names *nameMap) bool {
			n += names.len()
			return true
		})
		return true
	})
	return n
}

func (j *Jar) String() string {
	cookies := j.Cookies()
	parts := make([]string, len(cookies))
	for i, c := range cookies {
		parts[i] = c.String()
	}
	return "<Jar[" + strings.Join(parts, ", ") + "]>"
}
