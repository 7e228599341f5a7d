package events

import (
	"context"
	"sync"
)

var _ EventService = (*MockEvents)(nil)

// MockEvents is an EventService for tests. It records events in memory.
type MockEvents struct {
	mu     sync.Mutex
	Events []VisitEvent
}

func NewMockEvents() *MockEvents {
	return &MockEvents{}
}

func (m *MockEvents) RecordVisit(ctx context.Context, e VisitEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, e)
	return nil
}

// Recorded returns a copy of the events recorded so far.
func (m *MockEvents) Recorded() []VisitEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]VisitEvent, len(m.Events))
	copy(out, m.Events)
	return out
}
