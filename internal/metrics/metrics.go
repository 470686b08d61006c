package metrics

import (
	"github.com/UnknownOlympus/cookiejar/internal/cookies"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the various metrics used for monitoring the application.
// It includes counters for cookies stored, rejected, returned and expired by
// the jar, and counters, gauges and histograms for fetcher runs.
type Metrics struct {
	Stored            prometheus.Counter
	Rejected          *prometheus.CounterVec
	Returned          prometheus.Counter
	Expired           prometheus.Counter
	Runs              *prometheus.CounterVec
	LastSuccessfulRun prometheus.Gauge
	RunDuration       prometheus.Histogram
}

var _ cookies.Observer = (*Metrics)(nil)

// NewMetrics creates a new Metrics instance with the provided Registerer.
// It initializes the jar counters and the fetcher run metrics.
//
// Parameters:
//   - reg: A prometheus.Registerer used to register the metrics.
//
// Returns:
//   - A pointer to the newly created Metrics instance.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		Stored: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cookiejar_cookies_stored_total",
			Help: "Total number of cookies written to the jar.",
		}),
		Rejected: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "cookiejar_cookies_rejected_total",
			Help: "Total number of cookies the jar refused to store",
		}, []string{"reason"}), // reason: 'malformed', 'policy', 'shadowed'
		Returned: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cookiejar_cookies_returned_total",
			Help: "Total number of cookies attached to outgoing requests.",
		}),
		Expired: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cookiejar_cookies_expired_total",
			Help: "Total number of cookies removed from the jar because they expired or were expired by a server.",
		}),
		Runs: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "cookiejar_fetch_runs_total",
			Help: "Total times the fetcher has successfully or unsuccessfully completed its full cycle.",
		}, []string{"status"}),
		LastSuccessfulRun: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "cookiejar_last_successful_run_timestamp",
			Help: "Last time when run was successfully",
		}),
		RunDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "cookiejar_run_duration_seconds",
			Help:    "Measures how long it takes for a full fetch cycle to complete",
			Buckets: prometheus.DefBuckets,
		}),
	}

	metrics.Runs.WithLabelValues("success")
	metrics.Runs.WithLabelValues("failure")
	for _, reason := range []string{cookies.ReasonMalformed, cookies.ReasonPolicy, cookies.ReasonShadowed} {
		metrics.Rejected.WithLabelValues(reason)
	}

	return metrics
}

func (m *Metrics) CookieStored(*cookies.Cookie) {
	m.Stored.Inc()
}

func (m *Metrics) CookieRejected(reason string) {
	m.Rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) CookiesReturned(n int) {
	m.Returned.Add(float64(n))
}

func (m *Metrics) CookiesExpired(n int) {
	m.Expired.Add(float64(n))
}
