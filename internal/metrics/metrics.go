package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	CodeFetches     prometheus.Counter
	CodeFetchMisses prometheus.Counter
	CaptchaSolves   prometheus.Counter
	CaptchaFailures prometheus.Counter
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "xvps_renew_runs_total",
			Help: "Total renewal runs by terminal status",
		}, []string{"status"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "xvps_renew_run_duration_seconds",
			Help:    "Wall-clock duration of a renewal run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		CodeFetches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "xvps_renew_code_fetches_total",
			Help: "Total verification codes fetched from the mailbox",
		}),
		CodeFetchMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "xvps_renew_code_fetch_misses_total",
			Help: "Total mailbox polls that exhausted their budget without a code",
		}),
		CaptchaSolves: promauto.NewCounter(prometheus.CounterOpts{
			Name: "xvps_renew_captcha_solves_total",
			Help: "Total successful captcha recognitions",
		}),
		CaptchaFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "xvps_renew_captcha_failures_total",
			Help: "Total failed captcha recognition attempts",
		}),
	}
}
