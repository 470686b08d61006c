package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/UnknownOlympus/cookiejar/internal/cookies"
	"github.com/UnknownOlympus/cookiejar/internal/lib/logger/sl"
	"github.com/UnknownOlympus/cookiejar/internal/parser"
)

// ErrNoJar is returned by Transport.RoundTrip when no jar is configured.
var ErrNoJar = errors.New("transport has no cookie jar")

// Transport is an http.RoundTripper that sends the cookies Jar selects for
// each request and stores the cookies of each response. Redirect hops made
// by an http.Client pass through it one by one, so cookies set on a redirect
// are honored by the next hop.
type Transport struct {
	// Base performs the request. http.DefaultTransport when nil.
	Base http.RoundTripper
	Jar  *cookies.Jar
	Log  *slog.Logger
	// ParseMeta also extracts cookies set by <meta http-equiv> tags of HTML responses.
	ParseMeta bool
}

func (t *Transport) base() http.RoundTripper {
	if t.Base == nil {
		return http.DefaultTransport
	}
	return t.Base
}

func (t *Transport) logger() *slog.Logger {
	if t.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return t.Log
}

// RoundTrip leaves req untouched; cookie headers go on a clone.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Jar == nil {
		return nil, ErrNoJar
	}

	out := req.Clone(req.Context())
	t.Jar.AddCookieHeader(cookies.WrapRequest(out))

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		return nil, err //nolint:wrapcheck // RoundTrippers must not wrap transport errors
	}

	header := resp.Header
	if t.ParseMeta && parser.IsHTML(resp.Header.Get("Content-Type")) {
		header, err = t.withMetaCookies(resp)
		if err != nil {
			t.logger().WarnContext(req.Context(), "Failed to read meta cookies", "URL", req.URL, sl.Err(err))
			header = resp.Header
		}
	}

	t.Jar.ExtractCookies(cookies.HeaderResponse(header), cookies.WrapRequest(out))
	return resp, nil
}

// withMetaCookies returns the response headers plus any cookie headers found
// in the HTML body. The body is buffered and put back for the caller.
func (t *Transport) withMetaCookies(resp *http.Response) (http.Header, error) {
	if resp.Body == nil || resp.Body == http.NoBody {
		return resp.Header, nil
	}

	body, err := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close response body: %w", closeErr)
	}

	meta, err := parser.MetaHeaders(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return resp.Header, nil
	}

	header := resp.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	for name, values := range meta {
		for _, value := range values {
			header.Add(name, value)
		}
	}
	return header, nil
}
