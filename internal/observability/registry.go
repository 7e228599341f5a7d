package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components receive it by injection rather than touching the global
// Prometheus collectors directly.
type MetricsRegistry interface {
	// HTTP request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Shorten/redirect metrics
	IncrementShortens(outcome string)
	IncrementRedirects(outcome string)

	// Risk engine metrics
	IncrementRiskRejections()
	RecordRiskScore(score int)

	// Rate limiting metrics
	IncrementRateLimitRequests(bucket string)
	IncrementRateLimitHits(bucket string)

	// Moderation metrics
	IncrementReports()
	IncrementAppeals(kind string)
	IncrementAutoFlags()
	IncrementIPBlocks(action string)

	// Dependency failure metrics
	IncrementCacheFallbacks(component string)
}

// PrometheusRegistry implements MetricsRegistry using the package-level
// Prometheus collectors.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry.
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementShortens(outcome string) {
	ShortenCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementRedirects(outcome string) {
	RedirectCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementRiskRejections() {
	RiskRejections.Inc()
}

func (r *PrometheusRegistry) RecordRiskScore(score int) {
	RiskScore.Observe(float64(score))
}

func (r *PrometheusRegistry) IncrementRateLimitRequests(bucket string) {
	RateLimitRequests.WithLabelValues(bucket).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(bucket string) {
	RateLimitHits.WithLabelValues(bucket).Inc()
}

func (r *PrometheusRegistry) IncrementReports() {
	ReportCount.Inc()
}

func (r *PrometheusRegistry) IncrementAppeals(kind string) {
	AppealCount.WithLabelValues(kind).Inc()
}

func (r *PrometheusRegistry) IncrementAutoFlags() {
	AutoFlagCount.Inc()
}

func (r *PrometheusRegistry) IncrementIPBlocks(action string) {
	IPBlockCount.WithLabelValues(action).Inc()
}

func (r *PrometheusRegistry) IncrementCacheFallbacks(component string) {
	CacheFallbacks.WithLabelValues(component).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for callers that
// run without metrics.
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry.
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementShortens(outcome string)                                     {}
func (r *NoOpRegistry) IncrementRedirects(outcome string)                                    {}
func (r *NoOpRegistry) IncrementRiskRejections()                                             {}
func (r *NoOpRegistry) RecordRiskScore(score int)                                            {}
func (r *NoOpRegistry) IncrementRateLimitRequests(bucket string)                             {}
func (r *NoOpRegistry) IncrementRateLimitHits(bucket string)                                 {}
func (r *NoOpRegistry) IncrementReports()                                                    {}
func (r *NoOpRegistry) IncrementAppeals(kind string)                                         {}
func (r *NoOpRegistry) IncrementAutoFlags()                                                  {}
func (r *NoOpRegistry) IncrementIPBlocks(action string)                                      {}
func (r *NoOpRegistry) IncrementCacheFallbacks(component string)                             {}
