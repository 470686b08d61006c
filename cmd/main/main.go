package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/UnknownOlympus/cookiejar/internal/client"
	"github.com/UnknownOlympus/cookiejar/internal/config"
	"github.com/UnknownOlympus/cookiejar/internal/cookies"
	"github.com/UnknownOlympus/cookiejar/internal/lib/logger/sl"
	"github.com/UnknownOlympus/cookiejar/internal/metrics"
	"github.com/UnknownOlympus/cookiejar/internal/server"
	"github.com/UnknownOlympus/cookiejar/internal/services/fetcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

// main is the entry point of the application.
func main() {
	var wgr sync.WaitGroup
	delta := 2

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	logger := setupLogger(cfg.Env)

	// Create a separate registry for metrics with exemplar
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	policyOpts, err := cfg.Policy.Options()
	if err != nil {
		logger.Error("Invalid cookie policy", sl.Err(err))
		os.Exit(1)
	}
	policyOpts = append(policyOpts, cookies.WithPolicyLogger(logger))
	jar := cookies.New(cookies.NewDefaultPolicy(policyOpts...),
		cookies.WithLogger(logger), cookies.WithObserver(appMetrics))

	httpClient := client.CreateHTTPClient(logger, jar)
	fetch := fetcher.NewFetcher(logger, httpClient, appMetrics, cfg.Fetcher.URLs, cfg.Fetcher.UserAgent)

	targetHost := ""
	if len(cfg.Fetcher.URLs) > 0 {
		targetHost = cfg.Fetcher.URLs[0]
	}

	wgr.Add(delta)

	go func() {
		defer wgr.Done()
		server.StartMonitoringServer(ctx, logger, reg, jar, cfg.Server.Port, targetHost)
	}()

	go func() {
		defer wgr.Done()
		logger.InfoContext(ctx, "Starting Fetcher Service")
		if err = fetch.Start(ctx, cfg.Fetcher.Interval); err != nil {
			logger.ErrorContext(ctx, "Fetcher Service failed", sl.Err(err))
		}
		logger.InfoContext(ctx, "Fetcher Service stopped.")
	}()

	logger.InfoContext(ctx, "Application started. Press Ctrl+C to stop.")

	wgr.Wait()

	logger.InfoContext(ctx, "Application stopped gracefully...")
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: false,
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelInfo,
				AddSource: false,
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:       slog.LevelWarn,
				AddSource:   false,
				ReplaceAttr: dropTime,
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:       slog.LevelError,
				AddSource:   false,
				ReplaceAttr: dropTime,
			}),
		)

		log.Error(
			"The env parameter was not specified, or was invalid. Logging will be minimal, by default." +
				" Please specify the value of `env`: local, development, production")
	}

	return log
}

func dropTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{Key: "", Value: slog.Value{}}
	}
	return a
}
