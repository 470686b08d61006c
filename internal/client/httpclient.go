package client

import (
	"log/slog"
	"net/http"

	"github.com/UnknownOlympus/cookiejar/internal/cookies"
)

// CreateHTTPClient initializes an HTTP client whose cookies are handled by jar.
// The client's own Jar stays nil; Transport does the work on every hop.
func CreateHTTPClient(log *slog.Logger, jar *cookies.Jar) *http.Client {
	return &http.Client{
		Transport: &Transport{
			Base:      http.DefaultTransport,
			Jar:       jar,
			Log:       log,
			ParseMeta: true,
		},
		CheckRedirect: func(req *http.Request, _ []*http.Request) error {
			log.Debug("Redirected to URL", "URL", req.URL)

			return nil
		},
	}
}
