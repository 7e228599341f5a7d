package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shortener_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// shorten attempts labelled by outcome (created, duplicate, rejected, error)
	ShortenCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_shortens_total",
			Help: "Total shorten attempts by outcome",
		},
		[]string{"outcome"},
	)

	// redirects labelled by outcome (ok, warning, not_found, blocked)
	RedirectCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_redirects_total",
			Help: "Total redirect resolutions by outcome",
		},
		[]string{"outcome"},
	)

	// submissions rejected by the risk-scoring engine
	RiskRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shortener_risk_rejections_total",
			Help: "Total URLs rejected as unsafe by the risk engine",
		},
	)

	// distribution of computed risk scores
	RiskScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shortener_risk_score",
			Help:    "Histogram of risk scores assigned to submitted URLs",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	// rate limit checks per bucket
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_ratelimit_requests_total",
			Help: "Total rate limit checks per bucket",
		},
		[]string{"bucket"},
	)

	// rate limit rejections per bucket
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_ratelimit_hits_total",
			Help: "Total rate limited requests per bucket",
		},
		[]string{"bucket"},
	)

	// abuse reports submitted
	ReportCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shortener_reports_total",
			Help: "Total link reports submitted",
		},
	)

	// appeals submitted, labelled by kind (url, ip)
	AppealCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_appeals_total",
			Help: "Total appeals submitted",
		},
		[]string{"kind"},
	)

	// links auto-flagged by the report threshold escalation
	AutoFlagCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shortener_autoflags_total",
			Help: "Total links auto-flagged as malicious",
		},
	)

	// IP block mutations labelled by action (block, unblock)
	IPBlockCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_ip_blocks_total",
			Help: "Total IP block registry mutations",
		},
		[]string{"action"},
	)

	// dependency failures resolved by a fail-open or fallback policy,
	// labelled by component
	CacheFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_cache_fallbacks_total",
			Help: "Total cache failures resolved by fail-open or store fallback",
		},
		[]string{"component"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		ShortenCount,
		RedirectCount,
		RiskRejections,
		RiskScore,
		RateLimitRequests,
		RateLimitHits,
		ReportCount,
		AppealCount,
		AutoFlagCount,
		IPBlockCount,
		CacheFallbacks,
	)
}
