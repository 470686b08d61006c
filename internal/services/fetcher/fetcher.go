package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/UnknownOlympus/cookiejar/internal/lib/logger/sl"
	"github.com/UnknownOlympus/cookiejar/internal/metrics"
)

var (
	ErrBadStatus   = errors.New("unexpected status code")
	ErrBadInterval = errors.New("interval must be positive")
)

// Doer sends HTTP requests. *http.Client built by client.CreateHTTPClient
// carries the cookie jar.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher visits a fixed list of URLs in order, so cookies set by one page
// (a login form, say) are sent to the next.
type Fetcher struct {
	log        *slog.Logger
	client     Doer
	metrics    *metrics.Metrics
	urls       []string
	userAgent  string
	retries    int
	retryDelay time.Duration
}

type Option func(*Fetcher)

// WithRetry sets how many times a URL is tried and the pause between tries.
func WithRetry(retries int, delay time.Duration) Option {
	return func(f *Fetcher) {
		f.retries = max(retries, 1)
		f.retryDelay = delay
	}
}

func NewFetcher(
	log *slog.Logger,
	client Doer,
	metrics *metrics.Metrics,
	urls []string,
	userAgent string,
	opts ...Option,
) *Fetcher {
	const retries = 3
	const retryTimeout = 5 * time.Second

	f := &Fetcher{
		log:        log,
		client:     client,
		metrics:    metrics,
		urls:       urls,
		userAgent:  userAgent,
		retries:    retries,
		retryDelay: retryTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) initLogger(opn string) *slog.Logger {
	return f.log.With(
		slog.String("op", opn),
	)
}

// Start runs the URL list once, then again every interval until ctx is done.
func (f *Fetcher) Start(ctx context.Context, interval time.Duration) error {
	const opn = "Fetcher.Start"
	log := f.initLogger(opn)

	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrBadInterval, interval)
	}

	log.InfoContext(ctx, "Starting first run", "urls", len(f.urls))
	if err := f.RunOnce(ctx); err != nil {
		log.ErrorContext(ctx, "First run failed", sl.Err(err))
	}

	log.InfoContext(ctx, "Starting maintainance mode", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.InfoContext(ctx, "Periodic check triggered.")
			if err := f.RunOnce(ctx); err != nil {
				log.ErrorContext(ctx, "Periodic run failed", sl.Err(err))
			}
		case <-ctx.Done():
			log.InfoContext(ctx, "Service shutting down.")
			return nil
		}
	}
}

// RunOnce fetches every URL in order. A failing URL does not stop the run;
// all failures are joined into the returned error.
func (f *Fetcher) RunOnce(ctx context.Context) error {
	const opn = "Fetcher.RunOnce"
	log := f.initLogger(opn)
	startTime := time.Now()

	var errs []error
	referer := ""
	for _, target := range f.urls {
		if err := f.retryFetch(ctx, log, target, referer); err != nil {
			errs = append(errs, err)
		}
		referer = target
	}

	if err := errors.Join(errs...); err != nil {
		f.metrics.Runs.WithLabelValues("failure").Inc()
		return err
	}

	f.metrics.Runs.WithLabelValues("success").Inc()
	f.metrics.LastSuccessfulRun.SetToCurrentTime()
	f.metrics.RunDuration.Observe(time.Since(startTime).Seconds())
	log.DebugContext(ctx, "Run completed", "urls", len(f.urls))
	return nil
}

func (f *Fetcher) retryFetch(ctx context.Context, log *slog.Logger, target, referer string) error {
	var err error

	for index := range f.retries {
		err = f.fetch(ctx, target, referer)
		if err == nil {
			return nil
		}

		log.WarnContext(ctx, "Failed to fetch, retrying...",
			"URL", target, "attempt", index+1, "of", f.retries, sl.Err(err))
		if index == f.retries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("fetch %s: %w", target, ctx.Err())
		case <-time.After(f.retryDelay):
		}
	}

	return fmt.Errorf("fetch %s after %d attempts: %w", target, f.retries, err)
}

func (f *Fetcher) fetch(ctx context.Context, target, referer string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create new request %s: %w", target, err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to request %s: %w", target, err)
	}
	defer resp.Body.Close()

	if _, err = io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	return nil
}
