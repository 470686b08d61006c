package cookies

import (
	"errors"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	headerSetCookie  = "Set-Cookie"
	headerSetCookie2 = "Set-Cookie2"
	headerCookie     = "Cookie"
	headerCookie2    = "Cookie2"
)

// Rejection reasons reported to the Observer.
const (
	ReasonMalformed = "malformed"
	ReasonPolicy    = "policy"
	ReasonShadowed  = "shadowed"
)

// pair is one attr[=value] item of a Set-Cookie header. hasValue separates
// "port" from "port=".
type pair struct {
	key      string
	value    string
	hasValue bool
}

var (
	headerTokenRE       = regexp.MustCompile(`^\s*([^=\s;,]+)`)
	headerQuotedValueRE = regexp.MustCompile(`^\s*=\s*"([^"\\]*(?:\\.[^"\\]*)*)"`)
	headerValueRE       = regexp.MustCompile(`^\s*=\s*([^\s;,]*)`)
	headerEscapeRE      = regexp.MustCompile(`\\(.)`)
	headerJunkRE        = regexp.MustCompile(`^[=\s;]*`)

	nsParamSplitRE = regexp.MustCompile(`;\s*`)
	nsKeyValueRE   = regexp.MustCompile(`\s*=\s*`)
	whitespaceRE   = regexp.MustCompile(`\s+`)
)

var (
	nsKnownAttrs = map[string]bool{
		"expires": true, "domain": true, "path": true, "secure": true,
		"version": true, "port": true, "max-age": true,
	}
	valueAttrs = map[string]bool{
		"version": true, "expires": true, "max-age": true, "domain": true,
		"path": true, "port": true, "comment": true, "commenturl": true,
	}
	booleanAttrs = map[string]bool{"discard": true, "secure": true}
)

// splitHeaderWords tokenizes RFC 2965 style headers. Values may be quoted
// with backslash escapes; a comma outside quotes starts the next cookie.
func splitHeaderWords(values []string) [][]pair {
	var result [][]pair
	for _, text := range values {
		var pairs []pair
		for text != "" {
			if m := headerTokenRE.FindStringSubmatchIndex(text); m != nil {
				p := pair{key: text[m[2]:m[3]]}
				text = text[m[1]:]
				if q := headerQuotedValueRE.FindStringSubmatchIndex(text); q != nil {
					p.value = headerEscapeRE.ReplaceAllString(text[q[2]:q[3]], "$1")
					p.hasValue = true
					text = text[q[1]:]
				} else if v := headerValueRE.FindStringSubmatchIndex(text); v != nil {
					p.value = strings.TrimRight(text[v[2]:v[3]], " \t\r\n")
					p.hasValue = true
					text = text[v[1]:]
				}
				pairs = append(pairs, p)
				continue
			}
			if trimmed := strings.TrimLeft(text, " \t\r\n"); strings.HasPrefix(trimmed, ",") {
				text = trimmed[1:]
				if len(pairs) > 0 {
					result = append(result, pairs)
				}
				pairs = nil
				continue
			}
			junk := headerJunkRE.FindStringIndex(text)
			if junk == nil || junk[1] == 0 {
				text = text[1:]
				continue
			}
			text = text[junk[1]:]
		}
		if len(pairs) > 0 {
			result = append(result, pairs)
		}
	}
	return result
}

// parseNSHeaders tokenizes Netscape Set-Cookie headers: split on ';', the
// first item is always the cookie itself, values run up to the next ';'.
// Only the quotes around version and expires values are stripped.
func parseNSHeaders(values []string) [][]pair {
	var result [][]pair
	for _, header := range values {
		var pairs []pair
		versionSet := false
		for i, param := range nsParamSplitRE.Split(header, -1) {
			param = strings.TrimRight(param, " \t\r\n")
			if param == "" {
				continue
			}
			var p pair
			if !strings.Contains(param, "=") {
				p.key = strings.TrimLeft(param, " \t\r\n")
			} else {
				kv := nsKeyValueRE.Split(param, 2)
				p.key = strings.TrimLeft(kv[0], " \t\r\n")
				p.value = kv[1]
				p.hasValue = true
			}
			if i != 0 {
				if lc := strings.ToLower(p.key); nsKnownAttrs[lc] {
					p.key = lc
				}
				switch p.key {
				case "version":
					p.value = stripQuotes(p.value)
					versionSet = true
				case "expires":
					p.value = strings.TrimSuffix(strings.TrimPrefix(p.value, `"`), `"`)
				}
			}
			pairs = append(pairs, p)
		}
		if len(pairs) > 0 {
			if !versionSet {
				pairs = append(pairs, pair{key: "version", value: "0", hasValue: true})
			}
			result = append(result, pairs)
		}
	}
	return result
}

func stripQuotes(s string) string {
	s = strings.TrimPrefix(s, `"`)
	return strings.TrimSuffix(s, `"`)
}

// parser turns tokenized headers into candidate cookies for one request.
type parser struct {
	log      *slog.Logger
	now      time.Time
	rejected func(reason string)
}

// cookies builds candidates from tokenized headers. rfc2965 marks the
// Set-Cookie2 channel. Malformed cookies are dropped and reported.
func (p *parser) cookies(attrSets [][]pair, req Request, rfc2965 bool) []*Cookie {
	out := make([]*Cookie, 0, len(attrSets))
	for _, attrs := range attrSets {
		c, ok := p.cookie(attrs, req, rfc2965)
		if !ok {
			p.rejected(ReasonMalformed)
			continue
		}
		out = append(out, c)
	}
	return out
}

type attrValue struct {
	value    string
	hasValue bool
}

//nolint:gocognit,cyclop // attribute normalisation is one pass by nature
func (p *parser) cookie(attrs []pair, req Request, rfc2965 bool) (*Cookie, bool) {
	log := p.log.With(slog.String("name", attrs[0].key))

	standard := make(map[string]attrValue)
	var rest []Attr
	var expires *time.Time
	maxAgeSet := false

	for _, a := range attrs[1:] {
		key := a.key
		if lc := strings.ToLower(key); valueAttrs[lc] || booleanAttrs[lc] {
			key = lc
		}
		value, hasValue := a.value, a.hasValue
		if booleanAttrs[key] && !hasValue {
			hasValue = true
		}
		if _, seen := standard[key]; seen {
			continue
		}

		switch key {
		case "domain":
			if !hasValue {
				log.Debug("missing value for domain attribute")
				return nil, false
			}
			value = strings.ToLower(value)
		case "expires":
			if maxAgeSet {
				continue
			}
			t, ok := parseHTTPDate(value, p.now)
			if !hasValue || !ok {
				log.Debug("missing or invalid value for expires attribute: treating as session cookie")
				continue
			}
			expires = &t
		case "max-age":
			maxAgeSet = true
			seconds, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if errors.Is(err, strconv.ErrRange) {
				err = nil // seconds is clamped to the int64 range
			}
			if !hasValue || err != nil {
				log.Debug("missing or invalid (non-numeric) value for max-age attribute")
				return nil, false
			}
			t := addSeconds(p.now, seconds)
			expires = &t
			key = "expires"
		}

		if valueAttrs[key] || booleanAttrs[key] {
			if !hasValue && key != "port" && key != "comment" && key != "commenturl" {
				log.Debug("missing value for attribute", slog.String("attr", key))
				return nil, false
			}
			standard[key] = attrValue{value: value, hasValue: hasValue}
			continue
		}
		rest = append(rest, Attr{Name: key, Value: value})
	}

	c := &Cookie{
		Name:    attrs[0].key,
		Value:   attrs[0].value,
		NoValue: !attrs[0].hasValue,
		Rest:    rest,
		RFC2965: rfc2965,
	}
	if rfc2965 {
		c.Version = 1
	}
	if v, ok := standard["version"]; ok {
		version, err := strconv.Atoi(strings.TrimSpace(stripQuotes(v.value)))
		if err != nil {
			log.Debug("invalid version attribute", slog.String("version", v.value))
			return nil, false
		}
		c.Version = version
	}
	_, c.Secure = standard["secure"]
	_, c.Discard = standard["discard"]
	c.Comment = standard["comment"].value
	c.CommentURL = standard["commenturl"].value

	if path, ok := standard["path"]; ok && path.value != "" {
		c.Path = escapePath(path.value)
		c.PathSpecified = true
	} else {
		c.Path = defaultPath(requestPathOnly(req), c.Version)
	}

	_, erhn := effectiveRequestHost(req)
	if domain, ok := standard["domain"]; ok {
		c.DomainSpecified = true
		c.DomainInitialDot = strings.HasPrefix(domain.value, ".")
		c.Domain = domain.value
		if !c.DomainInitialDot {
			c.Domain = "." + c.Domain
		}
	} else {
		c.Domain = erhn
	}

	if port, ok := standard["port"]; ok {
		c.PortSpecified = true
		if port.hasValue {
			ports := whitespaceRE.ReplaceAllString(port.value, "")
			c.Port = &ports
		}
	}

	c.Expires = expires
	if expires == nil {
		c.Discard = true
	}
	return c, true
}

// maxAgeLimit is the largest number of seconds a time.Duration holds.
const maxAgeLimit = math.MaxInt64 / int64(time.Second)

// addSeconds is now plus seconds, saturating instead of wrapping around.
func addSeconds(now time.Time, seconds int64) time.Time {
	seconds = max(min(seconds, maxAgeLimit), -maxAgeLimit)
	return now.Add(time.Duration(seconds) * time.Second)
}

// defaultPath derives a cookie path from the request path: Netscape drops the
// final slash and what follows it, RFC 2965 keeps the slash.
func defaultPath(reqPath string, version int) string {
	path := reqPath
	if i := strings.LastIndex(path, "/"); i != -1 {
		if version == 0 {
			path = path[:i]
		} else {
			path = path[:i+1]
		}
	}
	if path == "" {
		return "/"
	}
	return path
}
