package cookies

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	nonWordRE = regexp.MustCompile(`\W`)
	quoteRE   = regexp.MustCompile(`(["\\])`)
)

// advertiseCookie2 is the Cookie2 value that tells servers we speak RFC 2965.
// The Cookie header opens with the same item whenever it carries a version 1+ cookie.
const advertiseCookie2 = `$Version="1"`

// quoteValue backslash-escapes '"' and '\' in values that are not plain words.
func quoteValue(value string) string {
	if !nonWordRE.MatchString(value) {
		return value
	}
	return quoteRE.ReplaceAllString(value, `\${1}`)
}

func highestVersion(cookies []*Cookie) int {
	version := 0
	for _, c := range cookies {
		version = max(version, c.Version)
	}
	return version
}

// cookieAttrs renders cookies, already in header order, as Cookie header
// items. Netscape cookies go out verbatim; RFC 2965 cookies get quoting and
// $Path/$Domain/$Port mirrors for attributes the server set explicitly.
func cookieAttrs(cookies []*Cookie) []string {
	attrs := make([]string, 0, len(cookies)+1)
	if highestVersion(cookies) > 0 {
		attrs = append(attrs, advertiseCookie2)
	}

	for _, c := range cookies {
		switch {
		case c.NoValue:
			attrs = append(attrs, c.Name)
		case c.Version == 0:
			attrs = append(attrs, c.Name+"="+c.Value)
		default:
			attrs = append(attrs, c.Name+"="+quoteValue(c.Value))
		}
		if c.Version == 0 {
			continue
		}

		if c.PathSpecified {
			attrs = append(attrs, fmt.Sprintf(`$Path="%s"`, c.Path))
		}
		if c.DomainSpecified {
			domain := c.Domain
			if !c.DomainInitialDot {
				domain = strings.TrimPrefix(domain, ".")
			}
			attrs = append(attrs, fmt.Sprintf(`$Domain="%s"`, domain))
		}
		if c.PortSpecified {
			if c.Port == nil {
				attrs = append(attrs, "$Port")
			} else {
				attrs = append(attrs, fmt.Sprintf(`$Port="%s"`, *c.Port))
			}
		}
	}
	return attrs
}

// renderCookieHeader joins cookieAttrs into a Cookie header value.
func renderCookieHeader(cookies []*Cookie) string {
	return strings.Join(cookieAttrs(cookies), "; ")
}
