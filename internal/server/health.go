package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// CookieCounter is the part of the jar the health check reads.
type CookieCounter interface {
	Len() int
}

type HealthChecker struct {
	jar        CookieCounter
	targetHost string
	httpClient *http.Client
	log        *slog.Logger
}

// NewHealthChecker reports the jar size and, when targetHost is not empty,
// whether that host answers a HEAD request.
func NewHealthChecker(jar CookieCounter, targetHost string, log *slog.Logger) *HealthChecker {
	clientTO := 5
	return &HealthChecker{
		jar:        jar,
		targetHost: targetHost,
		httpClient: &http.Client{Timeout: time.Duration(clientTO) * time.Second},
		log:        log,
	}
}

func (h *HealthChecker) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	h.log.DebugContext(req.Context(), "Performing health checks...")

	var err error
	status := make(map[string]string)
	overallStatus := http.StatusOK

	if h.jar == nil {
		status["jar"] = "unavailable"
		overallStatus = http.StatusServiceUnavailable
		h.log.WarnContext(req.Context(), "Health check failed: no cookie jar")
	} else {
		status["jar"] = "ok"
		status["cookies"] = strconv.Itoa(h.jar.Len())
	}

	if h.targetHost != "" {
		if !h.checkTarget(req, status) {
			overallStatus = http.StatusServiceUnavailable
		}
	}

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(overallStatus)
	if err = json.NewEncoder(writer).Encode(status); err != nil {
		h.log.ErrorContext(req.Context(), "Failed to write health check response", "error", err)
	}

	h.log.DebugContext(req.Context(), "Health checks completed", "status", overallStatus)
}

func (h *HealthChecker) checkTarget(req *http.Request, status map[string]string) bool {
	headReq, err := http.NewRequestWithContext(req.Context(), http.MethodHead, h.targetHost, nil)
	if err != nil {
		status["target_host"] = "invalid"
		h.log.WarnContext(req.Context(), "Health check failed: bad target host", "host", h.targetHost, "error", err)
		return false
	}

	resp, err := h.httpClient.Do(headReq)
	ok := true
	switch {
	case err != nil:
		status["target_host"] = "unreachable"
		ok = false
		h.log.WarnContext(
			req.Context(),
			"Health check failed: target host unreachable",
			"host",
			h.targetHost,
			"error",
			err,
		)
	case resp.StatusCode >= http.StatusBadRequest:
		status["target_host"] = "degraded"
		ok = false
		h.log.WarnContext(
			req.Context(),
			"Health check failed: target host returned error status",
			"host",
			h.targetHost,
			"status_code",
			resp.StatusCode,
		)
	default:
		status["target_host"] = "ok"
	}
	if resp != nil {
		if err = resp.Body.Close(); err != nil {
			h.log.WarnContext(req.Context(), "Failed to close response body", "error", err)
		}
	}
	return ok
}
