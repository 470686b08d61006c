package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/UnknownOlympus/cookiejar/internal/cookies"
)

// cookieView is what /cookies shows of a stored cookie. Values stay private.
type cookieView struct {
	Domain  string     `json:"domain"`
	Path    string     `json:"path"`
	Name    string     `json:"name"`
	Version int        `json:"version"`
	Secure  bool       `json:"secure"`
	Session bool       `json:"session"`
	Expires *time.Time `json:"expires,omitempty"`
}

type CookieLister struct {
	jar *cookies.Jar
	log *slog.Logger
}

// NewCookieLister serves the jar contents as JSON, in jar order.
func NewCookieLister(jar *cookies.Jar, log *slog.Logger) *CookieLister {
	return &CookieLister{jar: jar, log: log}
}

func (l *CookieLister) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writer.Header().Set("Allow", http.MethodGet)
		http.Error(writer, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	views := make([]cookieView, 0, l.jar.Len())
	for c := range l.jar.All() {
		views = append(views, cookieView{
			Domain:  c.Domain,
			Path:    c.Path,
			Name:    c.Name,
			Version: c.Version,
			Secure:  c.Secure,
			Session: c.IsSession(),
			Expires: c.Expires,
		})
	}

	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(views); err != nil {
		l.log.ErrorContext(req.Context(), "Failed to write cookie list", "error", err)
	}
}
