package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/UnknownOlympus/cookiejar/internal/cookies"
	"github.com/UnknownOlympus/cookiejar/internal/lib/logger/sl"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// NewMux routes /metrics, /healthz and /cookies.
func NewMux(log *slog.Logger, reg prometheus.Gatherer, jar *cookies.Jar, targetHost string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.Handle("/healthz", NewHealthChecker(jar, targetHost, log))
	mux.Handle("/cookies", NewCookieLister(jar, log))
	return mux
}

// StartMonitoringServer serves NewMux on port until ctx is done, then shuts
// the server down gracefully.
func StartMonitoringServer(
	ctx context.Context,
	log *slog.Logger,
	reg prometheus.Gatherer,
	jar *cookies.Jar,
	port int,
	targetHost string,
) {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           NewMux(log, reg, jar, targetHost),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "Starting monitoring server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			log.ErrorContext(ctx, "Monitoring server failed", sl.Err(err))
		}
		return
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	log.InfoContext(ctx, "Shutting down monitoring server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(ctx, "Error shutting down monitoring server", sl.Err(err))
	}
}
