package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry is a MetricsRegistry for tests. It counts a few of the
// signals tests care about and ignores the rest.
type MockMetricsRegistry struct {
	mu             sync.Mutex
	RateLimitHit   map[string]int
	Fallbacks      map[string]int
	AutoFlagsTotal int
}

// NewMockMetricsRegistry creates a MockMetricsRegistry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{
		RateLimitHit: make(map[string]int),
		Fallbacks:    make(map[string]int),
	}
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementShortens(outcome string)                                     {}
func (m *MockMetricsRegistry) IncrementRedirects(outcome string)                                    {}
func (m *MockMetricsRegistry) IncrementRiskRejections()                                             {}
func (m *MockMetricsRegistry) RecordRiskScore(score int)                                            {}
func (m *MockMetricsRegistry) IncrementRateLimitRequests(bucket string)                             {}

func (m *MockMetricsRegistry) IncrementRateLimitHits(bucket string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RateLimitHit[bucket]++
}

func (m *MockMetricsRegistry) IncrementReports()               {}
func (m *MockMetricsRegistry) IncrementAppeals(kind string)    {}
func (m *MockMetricsRegistry) IncrementIPBlocks(action string) {}

func (m *MockMetricsRegistry) IncrementAutoFlags() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AutoFlagsTotal++
}

func (m *MockMetricsRegistry) IncrementCacheFallbacks(component string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fallbacks[component]++
}
