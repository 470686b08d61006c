package cookies

import (
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/UnknownOlympus/cookiejar/internal/lib/logger/sl"
	"golang.org/x/net/publicsuffix"
)

// Policy decides which cookies may be stored and which may be returned.
type Policy interface {
	// SetOK reports whether a freshly parsed cookie may be stored.
	SetOK(c *Cookie, req Request) bool
	// ReturnOK reports whether a stored cookie may be sent with req.
	ReturnOK(c *Cookie, req Request) bool
	// DomainReturnOK is a cheap pre-filter: false means no cookie stored
	// under domain can be returned to req.
	DomainReturnOK(domain string, req Request) bool
	// PathReturnOK is the equivalent pre-filter for a path bucket.
	PathReturnOK(path string, req Request) bool

	RFC2965() bool
	Netscape() bool
	HideCookie2() bool
	// RFC2109AsNetscape reports whether Version=1 cookies from Set-Cookie
	// are downgraded to Netscape cookies.
	RFC2109AsNetscape() bool
}

// NSDomainStrictness tightens Netscape domain handling. Flags combine.
type NSDomainStrictness int

const (
	// DomainLiberal applies no extra Netscape domain restrictions.
	DomainLiberal NSDomainStrictness = 0
	// DomainStrictNoDots rejects a domain when the part of the request host
	// in front of it contains a dot.
	DomainStrictNoDots NSDomainStrictness = 1 << (iota - 1)
	// DomainStrictNonDomain only returns cookies without an explicit domain
	// to the exact host that set them.
	DomainStrictNonDomain
	// DomainRFC2965Match applies RFC 2965 domain-matching when setting.
	DomainRFC2965Match
	// DomainStrict combines DomainStrictNoDots and DomainStrictNonDomain.
	DomainStrict = DomainStrictNoDots | DomainStrictNonDomain
)

// Two-label suffixes that strict domain checking treats like top-level domains.
var countryCodeSLDs = []string{
	"co", "ac", "com", "edu", "org", "net", "gov", "mil", "int",
	"aero", "biz", "cat", "coop", "info", "jobs", "mobi", "museum",
	"name", "pro", "travel", "eu",
}

// DefaultPolicy implements the Netscape and RFC 2965 acceptance and return rules.
type DefaultPolicy struct {
	mu             sync.RWMutex
	blockedDomains []string
	allowedDomains []string

	rfc2965                  bool
	netscape                 bool
	rfc2109AsNetscape        *bool
	hideCookie2              bool
	strictDomain             bool
	strictNSDomain           NSDomainStrictness
	strictNSSetInitialDollar bool
	strictNSSetPath          bool
	publicSuffixBlocking     bool

	log *slog.Logger
	now func() time.Time
}

// PolicyOption configures a DefaultPolicy.
type PolicyOption func(*DefaultPolicy)

// WithRFC2965 enables Set-Cookie2 processing and version 1 cookies.
func WithRFC2965(enabled bool) PolicyOption {
	return func(p *DefaultPolicy) { p.rfc2965 = enabled }
}

// WithNetscape toggles version 0 cookies. They are on by default.
func WithNetscape(enabled bool) PolicyOption {
	return func(p *DefaultPolicy) { p.netscape = enabled }
}

// WithRFC2109AsNetscape forces Version=1 Set-Cookie cookies to be treated as
// Netscape (true) or RFC 2965 (false) cookies. Unset, they follow !RFC2965.
func WithRFC2109AsNetscape(asNetscape bool) PolicyOption {
	return func(p *DefaultPolicy) { p.rfc2109AsNetscape = &asNetscape }
}

// WithHideCookie2 stops the Cookie2 capability header.
func WithHideCookie2(hide bool) PolicyOption {
	return func(p *DefaultPolicy) { p.hideCookie2 = hide }
}

// WithStrictDomain rejects domains like .co.uk.
func WithStrictDomain(strict bool) PolicyOption {
	return func(p *DefaultPolicy) { p.strictDomain = strict }
}

// WithStrictNSDomain sets the Netscape domain strictness flags.
func WithStrictNSDomain(flags NSDomainStrictness) PolicyOption {
	return func(p *DefaultPolicy) { p.strictNSDomain = flags }
}

// WithStrictNSSetInitialDollar rejects Netscape cookies whose name starts with '$'.
func WithStrictNSSetInitialDollar(strict bool) PolicyOption {
	return func(p *DefaultPolicy) { p.strictNSSetInitialDollar = strict }
}

// WithStrictNSSetPath requires an explicit Netscape path to prefix the request path.
func WithStrictNSSetPath(strict bool) PolicyOption {
	return func(p *DefaultPolicy) { p.strictNSSetPath = strict }
}

// WithPublicSuffixBlocking rejects explicit domains that are ICANN public suffixes.
func WithPublicSuffixBlocking(enabled bool) PolicyOption {
	return func(p *DefaultPolicy) { p.publicSuffixBlocking = enabled }
}

// WithBlockedDomains sets the block-list.
func WithBlockedDomains(domains ...string) PolicyOption {
	return func(p *DefaultPolicy) { p.blockedDomains = slices.Clone(domains) }
}

// WithAllowedDomains sets the allow-list. A non-empty list suppresses every
// domain that matches none of its entries.
func WithAllowedDomains(domains ...string) PolicyOption {
	return func(p *DefaultPolicy) { p.allowedDomains = slices.Clone(domains) }
}

// WithPolicyLogger routes rejection reasons to log at debug level.
func WithPolicyLogger(log *slog.Logger) PolicyOption {
	return func(p *DefaultPolicy) { p.log = log }
}

// WithPolicyClock replaces time.Now for expiry checks.
func WithPolicyClock(now func() time.Time) PolicyOption {
	return func(p *DefaultPolicy) { p.now = now }
}

// NewDefaultPolicy returns a policy accepting Netscape cookies only, unless
// options say otherwise.
func NewDefaultPolicy(opts ...PolicyOption) *DefaultPolicy {
	p := &DefaultPolicy{
		netscape: true,
		log:      slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *DefaultPolicy) RFC2965() bool     { return p.rfc2965 }
func (p *DefaultPolicy) Netscape() bool    { return p.netscape }
func (p *DefaultPolicy) HideCookie2() bool { return p.hideCookie2 }

func (p *DefaultPolicy) RFC2109AsNetscape() bool {
	if p.rfc2109AsNetscape == nil {
		return !p.rfc2965
	}
	return *p.rfc2109AsNetscape
}

// BlockedDomains returns a copy of the block-list.
func (p *DefaultPolicy) BlockedDomains() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.blockedDomains)
}

// SetBlockedDomains replaces the block-list.
func (p *DefaultPolicy) SetBlockedDomains(domains ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockedDomains = slices.Clone(domains)
}

// AllowedDomains returns a copy of the allow-list.
func (p *DefaultPolicy) AllowedDomains() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.allowedDomains)
}

// SetAllowedDomains replaces the allow-list; no domains removes it.
func (p *DefaultPolicy) SetAllowedDomains(domains ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedDomains = slices.Clone(domains)
}

// IsBlocked reports whether domain matches an entry of the block-list.
func (p *DefaultPolicy) IsBlocked(domain string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, blocked := range p.blockedDomains {
		if UserDomainMatch(domain, blocked) {
			return true
		}
	}
	return false
}

// IsNotAllowed reports whether an allow-list exists and domain matches none of it.
func (p *DefaultPolicy) IsNotAllowed(domain string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.allowedDomains) == 0 {
		return false
	}
	for _, allowed := range p.allowedDomains {
		if UserDomainMatch(domain, allowed) {
			return false
		}
	}
	return true
}

func (p *DefaultPolicy) reject(op string, c *Cookie, reason string, args ...any) bool {
	p.log.Debug(reason, append([]any{
		slog.String("op", op),
		sl.Cookie(c.Domain, c.Path, c.Name),
	}, args...)...)
	return false
}

// SetOK runs the version, name, path, domain and port checks in that order.
func (p *DefaultPolicy) SetOK(c *Cookie, req Request) bool {
	return p.setOKVersion(c) &&
		p.setOKName(c) &&
		p.setOKPath(c, req) &&
		p.setOKDomain(c, req) &&
		p.setOKPort(c, req)
}

func (p *DefaultPolicy) setOKVersion(c *Cookie) bool {
	const opn = "Policy.SetOK"
	if c.Version > 0 && !p.rfc2965 {
		return p.reject(opn, c, "RFC 2965 cookies are switched off")
	}
	if c.Version == 0 && !p.netscape {
		return p.reject(opn, c, "Netscape cookies are switched off")
	}
	return true
}

func (p *DefaultPolicy) setOKName(c *Cookie) bool {
	if c.Version == 0 && p.strictNSSetInitialDollar && strings.HasPrefix(c.Name, "$") {
		return p.reject("Policy.SetOK", c, "illegal name (starts with '$')")
	}
	return true
}

func (p *DefaultPolicy) setOKPath(c *Cookie, req Request) bool {
	if !c.PathSpecified {
		return true
	}
	reqPath := requestPath(req)
	if (c.Version > 0 || p.strictNSSetPath) && !strings.HasPrefix(reqPath, c.Path) {
		return p.reject("Policy.SetOK", c, "path attribute is not a prefix of request path",
			slog.String("request_path", reqPath))
	}
	return true
}

// strictDomainRejects spots two-label country-code style domains such as .co.uk.
func strictDomainRejects(domain string) bool {
	if strings.Count(domain, ".") < 2 {
		return false
	}
	i := strings.LastIndex(domain, ".")
	j := strings.LastIndex(domain[:i], ".")
	if j != 0 {
		return false
	}
	tld := domain[i+1:]
	sld := strings.ToLower(domain[j+1 : i])
	return len(tld) == 2 && slices.Contains(countryCodeSLDs, sld)
}

func isPublicSuffix(domain string) bool {
	undotted := strings.TrimPrefix(domain, ".")
	suffix, icann := publicsuffix.PublicSuffix(undotted)
	return icann && suffix == undotted
}

//nolint:cyclop // mirrors the ordered list of domain acceptance rules
func (p *DefaultPolicy) setOKDomain(c *Cookie, req Request) bool {
	const opn = "Policy.SetOK"
	if p.IsBlocked(c.Domain) {
		return p.reject(opn, c, "domain is in user block-list")
	}
	if p.IsNotAllowed(c.Domain) {
		return p.reject(opn, c, "domain is not in user allow-list")
	}
	if !c.DomainSpecified {
		return true
	}

	reqHost, erhn := effectiveRequestHost(req)
	domain := c.Domain
	if p.strictDomain && strictDomainRejects(domain) {
		return p.reject(opn, c, "country-code second level domain")
	}
	if p.publicSuffixBlocking && isPublicSuffix(domain) {
		return p.reject(opn, c, "domain is a public suffix")
	}

	undotted := strings.TrimPrefix(domain, ".")
	if !strings.Contains(undotted, ".") && domain != ".local" {
		return p.reject(opn, c, "non-local domain contains no embedded dot")
	}

	if c.Version == 0 &&
		!strings.HasSuffix(erhn, domain) &&
		!strings.HasPrefix(erhn, ".") &&
		!strings.HasSuffix("."+erhn, domain) {
		return p.reject(opn, c, "effective request-host does not domain-match domain",
			slog.String("erhn", erhn))
	}
	if (c.Version > 0 || p.strictNSDomain&DomainRFC2965Match != 0) && !DomainMatch(erhn, domain) {
		return p.reject(opn, c, "effective request-host does not domain-match domain",
			slog.String("erhn", erhn))
	}
	if c.Version > 0 || p.strictNSDomain&DomainStrictNoDots != 0 {
		prefix := reqHost[:max(len(reqHost)-len(domain), 0)]
		if strings.Contains(prefix, ".") && !ipv4RE.MatchString(reqHost) {
			return p.reject(opn, c, "host prefix contains a dot", slog.String("host", reqHost))
		}
	}
	return true
}

func (p *DefaultPolicy) setOKPort(c *Cookie, req Request) bool {
	if !c.PortSpecified || c.Port == nil {
		return true
	}
	reqPort := requestPort(req)
	for _, port := range strings.Split(*c.Port, ",") {
		if _, err := strconv.Atoi(port); err != nil {
			return p.reject("Policy.SetOK", c, "bad port", slog.String("port", port))
		}
		if port == reqPort {
			return true
		}
	}
	return p.reject("Policy.SetOK", c, "request port not found in cookie port list",
		slog.String("request_port", reqPort))
}

// ReturnOK runs the version, secure, expiry, port, domain, path and
// block/allow checks in that order.
func (p *DefaultPolicy) ReturnOK(c *Cookie, req Request) bool {
	const opn = "Policy.ReturnOK"
	if c.Version > 0 && !p.rfc2965 {
		return p.reject(opn, c, "RFC 2965 cookies are switched off")
	}
	if c.Version == 0 && !p.netscape {
		return p.reject(opn, c, "Netscape cookies are switched off")
	}
	if c.Secure && !isScheme(req, "https") {
		return p.reject(opn, c, "secure cookie with non-secure request")
	}
	if c.IsExpired(p.now()) {
		return p.reject(opn, c, "cookie expired")
	}
	if !p.returnOKPort(c, req) || !p.returnOKDomain(c, req) {
		return false
	}
	if !p.PathReturnOK(c.Path, req) {
		return p.reject(opn, c, "path does not match request path")
	}
	return p.returnOKLists(c)
}

func (p *DefaultPolicy) returnOKPort(c *Cookie, req Request) bool {
	if !c.PortSpecified {
		return true
	}
	reqPort := requestPort(req)
	if c.Port == nil {
		if reqPort != defaultPort(req.URL().Scheme) {
			return p.reject("Policy.ReturnOK", c, "request port is not the default port",
				slog.String("request_port", reqPort))
		}
		return true
	}
	if !slices.Contains(strings.Split(*c.Port, ","), reqPort) {
		return p.reject("Policy.ReturnOK", c, "request port does not match cookie port",
			slog.String("request_port", reqPort))
	}
	return true
}

func (p *DefaultPolicy) returnOKDomain(c *Cookie, req Request) bool {
	const opn = "Policy.ReturnOK"
	_, erhn := effectiveRequestHost(req)
	domain := c.Domain

	if c.Version == 0 && p.strictNSDomain&DomainStrictNonDomain != 0 &&
		!c.DomainSpecified && domain != erhn {
		return p.reject(opn, c, "cookie with unspecified domain does not string-compare equal to request domain")
	}
	if c.Version > 0 && !DomainMatch(erhn, domain) {
		return p.reject(opn, c, "effective request-host name does not domain-match RFC 2965 cookie domain",
			slog.String("erhn", erhn))
	}
	if c.Version == 0 && !strings.HasSuffix("."+erhn, domain) {
		return p.reject(opn, c, "request-host does not match Netscape cookie domain",
			slog.String("erhn", erhn))
	}
	return true
}

func (p *DefaultPolicy) returnOKLists(c *Cookie) bool {
	if p.IsBlocked(c.Domain) {
		return p.reject("Policy.ReturnOK", c, "domain is in user block-list")
	}
	if p.IsNotAllowed(c.Domain) {
		return p.reject("Policy.ReturnOK", c, "domain is not in user allow-list")
	}
	return true
}

// DomainReturnOK is a liberal suffix check against the dotted request host
// and effective request host.
func (p *DefaultPolicy) DomainReturnOK(domain string, req Request) bool {
	reqHost, erhn := effectiveRequestHost(req)
	if !strings.HasPrefix(reqHost, ".") {
		reqHost = "." + reqHost
	}
	if !strings.HasPrefix(erhn, ".") {
		erhn = "." + erhn
	}
	return strings.HasSuffix(reqHost, domain) || strings.HasSuffix(erhn, domain)
}

// PathReturnOK accepts a cookie path that prefixes the request path, and a
// cookie path that is the request path plus a trailing slash.
func (p *DefaultPolicy) PathReturnOK(path string, req Request) bool {
	if strings.HasPrefix(requestPath(req), path) {
		return true
	}
	return strings.HasSuffix(path, "/") && requestPathOnly(req) == strings.TrimSuffix(path, "/")
}

// isHDN reports whether host looks like a host domain name rather than an
// IPv4 address or a dotted fragment.
func isHDN(host string) bool {
	return host != "" &&
		!ipv4RE.MatchString(host) &&
		!strings.HasPrefix(host, ".") &&
		!strings.HasSuffix(host, ".")
}

// DomainMatch is the RFC 2965 domain-match: host equals domain, or domain
// starts with a dot and host is some non-empty name followed by domain.
// Note that "foo.net" does not domain-match ".foo.net".
func DomainMatch(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	if host == domain {
		return true
	}
	if !isHDN(host) || !strings.HasPrefix(domain, ".") {
		return false
	}
	if len(host) <= len(domain) || !strings.HasSuffix(host, domain) {
		return false
	}
	return isHDN(domain[1:])
}

// UserDomainMatch is the looser rule used for block- and allow-lists: IP
// addresses must be equal, a dotted entry matches by suffix and an undotted
// entry matches exactly.
func UserDomainMatch(domain, entry string) bool {
	domain = strings.ToLower(domain)
	entry = strings.ToLower(entry)
	if ipv4RE.MatchString(domain) || ipv4RE.MatchString(entry) {
		return domain == entry
	}
	if strings.HasPrefix(entry, ".") {
		return strings.HasSuffix(domain, entry)
	}
	return domain == entry
}
