package parser

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// cookieHeaders are the http-equiv names MetaHeaders keeps.
var cookieHeaders = []string{"Set-Cookie", "Set-Cookie2"}

// IsHTML reports whether a Content-Type header value names an HTML document.
func IsHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// MetaHeaders collects the cookie headers a page sets through
// <meta http-equiv="Set-Cookie" content="..."> tags, in document order.
// http-equiv names are matched case-insensitively; other tags are ignored.
func MetaHeaders(body io.Reader) (http.Header, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	header := make(http.Header)
	doc.Find("meta[http-equiv]").Each(func(_ int, meta *goquery.Selection) {
		equiv := strings.TrimSpace(meta.AttrOr("http-equiv", ""))
		content, ok := meta.Attr("content")
		if !ok {
			return
		}
		for _, name := range cookieHeaders {
			if strings.EqualFold(equiv, name) {
				header.Add(name, content)
			}
		}
	})

	return header, nil
}
